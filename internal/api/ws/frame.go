package ws

import (
	"github.com/bytedance/sonic"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shared/utils"
)

// Request is a client frame
type Request struct {
	ID     interface{} `json:"id,omitempty"`
	Op     string      `json:"op"`
	Params interface{} `json:"params,omitempty"`
}

// Response answers a Request that carried an id
type Response struct {
	ID     interface{} `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result"`
}

// ErrorResponse answers a failed Request
type ErrorResponse struct {
	ID    interface{} `json:"id"`
	OK    bool        `json:"ok"`
	Error string      `json:"error"`
}

// Hello is the payload of bridge:hello
type Hello struct {
	ClientID string `json:"clientId"`
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	err := sonic.Unmarshal(data, &req)
	return req, err
}

// paramsMap turns request params into provider params. Objects pass
// through; any other value is wrapped under utils.ValueKey.
func paramsMap(params interface{}) map[string]interface{} {
	switch p := params.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		return p
	default:
		return map[string]interface{}{utils.ValueKey: p}
	}
}

func successFrame(reqID interface{}, result *types.Result) interface{} {
	if result == nil {
		return Response{ID: reqID, OK: true}
	}
	if !result.Success {
		msg := "operation failed"
		if result.Error != nil {
			msg = *result.Error
		}
		return ErrorResponse{ID: reqID, Error: msg}
	}
	return Response{ID: reqID, OK: true, Result: result.Data}
}

func errorFrame(reqID interface{}, err error) interface{} {
	return ErrorResponse{ID: reqID, Error: err.Error()}
}
