// Copyright 2026 Joseph Cumines
//
// gojastreams: Goja bindings for the nodestreams writable sink.

// Package gojastreams binds the [github.com/joeycumines/go-nodestreams]
// writable sink into a Goja JavaScript runtime.
//
// After [Adapter.Bind], JavaScript code can construct and drive writable
// sinks with the familiar callback-based surface:
//
//	const chunks = [];
//	const w = new Writable({
//	    write(chunk, encoding, callback) {
//	        chunks.push(chunk);
//	        callback(null);
//	    },
//	});
//	w.write("hello");
//	w.end(() => console.log("done"));
//
// # Thread Safety
//
// The Goja runtime is not thread-safe and neither is the sink core: after
// binding, all sink activity must happen on the goroutine driving the
// runtime. Hook callbacks invoked from JavaScript already satisfy this.
package gojastreams

import (
	"fmt"

	"github.com/dop251/goja"
	nodestreams "github.com/joeycumines/go-nodestreams"
)

// Adapter bridges a Goja runtime to nodestreams.Writable.
type Adapter struct {
	runtime *goja.Runtime
}

// New creates an adapter for the given runtime.
func New(runtime *goja.Runtime) (*Adapter, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	return &Adapter{runtime: runtime}, nil
}

// Runtime returns the Goja runtime.
func (a *Adapter) Runtime() *goja.Runtime {
	return a.runtime
}

// Bind installs the Writable constructor in the runtime's global scope.
//
// The constructor accepts a single options object; recognized keys are
// write, writev, final, construct, destroy (functions), highWaterMark
// (non-negative number), and objectMode, decodeStrings, emitClose,
// autoDestroy (booleans), plus defaultEncoding (string).
func (a *Adapter) Bind() error {
	return a.runtime.Set("Writable", a.writableConstructor)
}

func (a *Adapter) writableConstructor(call goja.ConstructorCall) *goja.Object {
	optsVal := call.Argument(0)
	optsObj, ok := optsVal.(*goja.Object)
	if !ok || goja.IsNull(optsVal) || goja.IsUndefined(optsVal) {
		panic(a.runtime.NewTypeError("Writable requires an options object"))
	}

	thisObj := call.This
	opts := a.parseOptions(optsObj, thisObj)

	w, err := nodestreams.New(opts)
	if err != nil {
		panic(a.runtime.NewTypeError(err.Error()))
	}

	a.bindInstance(thisObj, w)
	return thisObj
}

func (a *Adapter) parseOptions(optsObj, thisObj *goja.Object) *nodestreams.Options {
	opts := &nodestreams.Options{}

	if v := optsObj.Get("highWaterMark"); valueSet(v) {
		hwm := int(v.ToInteger())
		if hwm < 0 {
			panic(a.runtime.NewTypeError("highWaterMark cannot be negative"))
		}
		opts.HighWaterMark = nodestreams.Int(hwm)
	}
	if v := optsObj.Get("objectMode"); valueSet(v) {
		opts.ObjectMode = v.ToBoolean()
	}
	if v := optsObj.Get("decodeStrings"); valueSet(v) {
		opts.DecodeStrings = nodestreams.Bool(v.ToBoolean())
	}
	if v := optsObj.Get("emitClose"); valueSet(v) {
		opts.EmitClose = nodestreams.Bool(v.ToBoolean())
	}
	if v := optsObj.Get("autoDestroy"); valueSet(v) {
		opts.AutoDestroy = nodestreams.Bool(v.ToBoolean())
	}
	if v := optsObj.Get("defaultEncoding"); valueSet(v) {
		opts.DefaultEncoding = v.String()
	}

	if fn, ok := a.hookFunc(optsObj, "write"); ok {
		opts.Write = func(chunk any, encoding string, cb nodestreams.Callback) {
			_, err := fn(thisObj, a.chunkToJS(chunk), a.runtime.ToValue(encoding), a.callbackToJS(cb))
			if err != nil {
				cb(err)
			}
		}
	}
	if fn, ok := a.hookFunc(optsObj, "writev"); ok {
		opts.Writev = func(chunks []nodestreams.Chunk, cb nodestreams.Callback) {
			arr := make([]any, len(chunks))
			for i, c := range chunks {
				entry := a.runtime.NewObject()
				_ = entry.Set("chunk", a.chunkToJS(c.Data))
				_ = entry.Set("encoding", c.Encoding)
				arr[i] = entry
			}
			_, err := fn(thisObj, a.runtime.ToValue(arr), a.callbackToJS(cb))
			if err != nil {
				cb(err)
			}
		}
	}
	if fn, ok := a.hookFunc(optsObj, "final"); ok {
		opts.Final = func(cb nodestreams.Callback) {
			_, err := fn(thisObj, a.callbackToJS(cb))
			if err != nil {
				cb(err)
			}
		}
	}
	if fn, ok := a.hookFunc(optsObj, "construct"); ok {
		opts.Construct = func(cb nodestreams.Callback) {
			_, err := fn(thisObj, a.callbackToJS(cb))
			if err != nil {
				cb(err)
			}
		}
	}
	if fn, ok := a.hookFunc(optsObj, "destroy"); ok {
		opts.Destroy = func(derr error, cb nodestreams.Callback) {
			_, err := fn(thisObj, a.errorToJS(derr), a.callbackToJS(cb))
			if err != nil {
				cb(err)
			}
		}
	}

	return opts
}

func (a *Adapter) hookFunc(optsObj *goja.Object, name string) (goja.Callable, bool) {
	v := optsObj.Get(name)
	if !valueSet(v) {
		return nil, false
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(a.runtime.NewTypeError("option %q must be a function", name))
	}
	return fn, true
}

func (a *Adapter) bindInstance(obj *goja.Object, w *nodestreams.Writable) {
	_ = obj.Set("write", func(call goja.FunctionCall) goja.Value {
		chunk := a.chunkFromJS(call.Argument(0))
		encoding := ""
		var cb nodestreams.Callback
		if arg := call.Argument(1); valueSet(arg) {
			if _, isFn := goja.AssertFunction(arg); isFn {
				cb = a.callbackFromJS(arg)
			} else {
				encoding = arg.String()
				if arg2 := call.Argument(2); valueSet(arg2) {
					cb = a.callbackFromJS(arg2)
				}
			}
		}
		ok, err := w.WriteEncoded(chunk, encoding, cb)
		if err != nil {
			panic(a.runtime.NewTypeError(err.Error()))
		}
		return a.runtime.ToValue(ok)
	})

	_ = obj.Set("end", func(call goja.FunctionCall) goja.Value {
		var chunk any
		encoding := ""
		var cb nodestreams.Callback
		pos := 0
		for _, arg := range call.Arguments {
			if _, isFn := goja.AssertFunction(arg); isFn {
				cb = a.callbackFromJS(arg)
				break
			}
			if !valueSet(arg) {
				pos++
				continue
			}
			switch pos {
			case 0:
				chunk = a.chunkFromJS(arg)
			case 1:
				encoding = arg.String()
			}
			pos++
		}
		w.EndChunk(chunk, encoding, cb)
		return obj
	})

	_ = obj.Set("cork", func(goja.FunctionCall) goja.Value {
		w.Cork()
		return goja.Undefined()
	})
	_ = obj.Set("uncork", func(goja.FunctionCall) goja.Value {
		w.Uncork()
		return goja.Undefined()
	})
	_ = obj.Set("destroy", func(call goja.FunctionCall) goja.Value {
		w.Destroy(a.errorFromJS(call.Argument(0)))
		return obj
	})
	_ = obj.Set("setDefaultEncoding", func(call goja.FunctionCall) goja.Value {
		if err := w.SetDefaultEncoding(call.Argument(0).String()); err != nil {
			panic(a.runtime.NewTypeError(err.Error()))
		}
		return obj
	})

	listen := func(register func(string, nodestreams.Listener) nodestreams.ListenerID) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			event := call.Argument(0).String()
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				panic(a.runtime.NewTypeError("listener must be a function"))
			}
			register(event, func(args ...any) {
				jsArgs := make([]goja.Value, len(args))
				for i, arg := range args {
					if err, isErr := arg.(error); isErr {
						jsArgs[i] = a.errorToJS(err)
					} else {
						jsArgs[i] = a.runtime.ToValue(arg)
					}
				}
				_, _ = fn(obj, jsArgs...)
			})
			return obj
		}
	}
	_ = obj.Set("on", listen(w.On))
	_ = obj.Set("once", listen(w.Once))

	accessor := func(name string, get func() goja.Value) {
		_ = obj.DefineAccessorProperty(name, a.runtime.ToValue(func(goja.FunctionCall) goja.Value {
			return get()
		}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	accessor("writable", func() goja.Value { return a.runtime.ToValue(w.Writable()) })
	accessor("writableEnded", func() goja.Value { return a.runtime.ToValue(w.Ended()) })
	accessor("writableFinished", func() goja.Value { return a.runtime.ToValue(w.Finished()) })
	accessor("writableNeedDrain", func() goja.Value { return a.runtime.ToValue(w.NeedDrain()) })
	accessor("writableHighWaterMark", func() goja.Value { return a.runtime.ToValue(w.HighWaterMark()) })
	accessor("writableLength", func() goja.Value { return a.runtime.ToValue(w.Len()) })
	accessor("writableCorked", func() goja.Value { return a.runtime.ToValue(w.Corked()) })
	accessor("writableObjectMode", func() goja.Value { return a.runtime.ToValue(w.ObjectMode()) })
	accessor("errored", func() goja.Value { return a.errorToJS(w.Errored()) })
	accessor("destroyed", func() goja.Value { return a.runtime.ToValue(w.Destroyed()) })
	accessor("closed", func() goja.Value { return a.runtime.ToValue(w.Closed()) })
}

// callbackToJS wraps a Go completion callback as the (err) => ... callable
// handed to consumer hooks.
func (a *Adapter) callbackToJS(cb nodestreams.Callback) goja.Value {
	return a.runtime.ToValue(func(call goja.FunctionCall) goja.Value {
		cb(a.errorFromJS(call.Argument(0)))
		return goja.Undefined()
	})
}

// callbackFromJS wraps a JS callback as a Go completion callback.
func (a *Adapter) callbackFromJS(v goja.Value) nodestreams.Callback {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(a.runtime.NewTypeError("callback must be a function"))
	}
	return func(err error) {
		_, _ = fn(goja.Undefined(), a.errorToJS(err))
	}
}

// chunkFromJS maps a JS chunk to the Go representation: strings stay
// strings (encoding-decoded by the sink), ArrayBuffers and typed arrays
// become []byte, anything else is passed through for object mode.
func (a *Adapter) chunkFromJS(v goja.Value) any {
	if goja.IsNull(v) || goja.IsUndefined(v) {
		return nil
	}
	switch exported := v.Export().(type) {
	case string:
		return exported
	case []byte:
		return exported
	case goja.ArrayBuffer:
		return exported.Bytes()
	default:
		return exported
	}
}

func (a *Adapter) chunkToJS(chunk any) goja.Value {
	switch v := chunk.(type) {
	case []byte:
		return a.runtime.ToValue(a.runtime.NewArrayBuffer(v))
	default:
		return a.runtime.ToValue(chunk)
	}
}

func (a *Adapter) errorToJS(err error) goja.Value {
	if err == nil {
		return goja.Null()
	}
	return a.runtime.NewGoError(err)
}

func (a *Adapter) errorFromJS(v goja.Value) error {
	if !valueSet(v) {
		return nil
	}
	if exported, ok := v.Export().(error); ok {
		return exported
	}
	return fmt.Errorf("%v", v.String())
}

func valueSet(v goja.Value) bool {
	return v != nil && !goja.IsNull(v) && !goja.IsUndefined(v)
}
