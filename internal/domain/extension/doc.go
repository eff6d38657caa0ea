// Package extension discovers, activates and tears down workspace extensions.
//
// Every client owns one runtime. Load is always a full reload: the previous
// runtime's disposables run first, in registration order, then each
// directory under <workspace>/.melius/extensions is read and activated.
// One broken manifest or failing activation marks that record as "error"
// and never aborts the load.
//
// Commands live in a per-client table keyed by command id. The last
// registration wins, and disposing any handle for an id removes it.
//
// Activation is behind the Loader and Module interfaces. GojaLoader runs
// main.js as a CommonJS module in an embedded goja VM:
//
//	module.exports.activate = (api) => {
//	    api.registerCommand("hello.say", (name) => `hi ${name}`);
//	};
package extension
