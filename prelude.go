// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package jsrt

import (
	"strconv"

	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/vmctx"
)

// installPrelude registers each built-in Kind's shared prototype object
// with rt.m.Objects (so every Object internal/jsobject.Store allocates of
// that Kind inherits it automatically) and declares the matching global
// constructor in rootCtx, ported from the original engine's per-builtin
// init(ctx, global) functions (builtins/array.rs's init being the closest
// model: build a constructor Object, build a prototype Object, wire
// constructor.prototype = proto and global.<Name> = constructor).
func (rt *Runtime) installPrelude() {
	objectProto := rt.newPrototype(jsobject.KindPlain)
	rt.installObject(objectProto)
	rt.installArray(rt.newPrototype(jsobject.KindArray))
	rt.installError(rt.newPrototype(jsobject.KindError))
	rt.installPromise(rt.newPrototype(jsobject.KindPromise))
	rt.installString(rt.newPrototype(jsobject.KindString))
	rt.installSymbol(rt.newPrototype(jsobject.KindSymbol))
	rt.installSet(rt.newPrototype(jsobject.KindSet), jsobject.KindSet)
	rt.installSet(rt.newPrototype(jsobject.KindWeakSet), jsobject.KindWeakSet)
}

// newPrototype allocates a plain prototype object for kind and registers
// it, so Store.alloc's resolvePrototype lookup resolves every future
// Object of that Kind (array literals, ArrayNew, ObjectFromInner, ...) to
// it without each call site having to know about the prelude.
func (rt *Runtime) newPrototype(kind jsobject.Kind) jsvalue.Value {
	proto := rt.m.NewObject()
	rt.m.Objects.RegisterPrototype(kind, proto.Object())
	return proto
}

// defineGlobalCtor declares a constructor function under name in rootCtx
// and points its "prototype" member at proto, the same constructor/
// prototype pairing builtins/array.rs's init wires by hand.
func (rt *Runtime) defineGlobalCtor(name string, proto jsvalue.Value, ctor jsobject.NativeFn) jsvalue.Value {
	fn := rt.m.FunctionNew(ctor)
	rt.m.SetMember(fn, "prototype", proto)
	rt.ctx.Declare(name, vmctx.KindVar, fn)
	return fn
}

func (rt *Runtime) method(proto jsvalue.Value, name string, fn jsobject.NativeFn) {
	rt.m.SetMember(proto, name, rt.m.FunctionNew(fn))
}

// installObject wires the Object global: `new Object()` (or a bare call)
// returns a fresh plain object regardless of any `this` Construct already
// allocated, matching the other built-in constructors' fromInner-and-
// discard pattern.
func (rt *Runtime) installObject(proto jsvalue.Value) {
	rt.defineGlobalCtor("Object", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if len(args) > 0 && args[0].IsObject() {
			return args[0], nil
		}
		return rt.m.NewObject(), nil
	})
}

// installArray wires the Array global: the bare constructor, plus the
// static Array.from/Array.isArray helpers ported from builtins/array.rs's
// init. Array.from supports a string (iterated rune by rune), an
// array-like object (anything exposing a numeric "length"), or a plain
// Array, with an optional per-element mapFn as the second argument.
func (rt *Runtime) installArray(proto jsvalue.Value) {
	ctor := rt.defineGlobalCtor("Array", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if len(args) == 1 && args[0].IsNumber() {
			return rt.m.ArrayNew(make([]jsvalue.Value, int(args[0].Number()))), nil
		}
		return rt.m.ArrayNew(append([]jsvalue.Value(nil), args...)), nil
	})

	rt.method(proto, "push", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if !this.IsObject() {
			return jsvalue.UndefinedValue(), nil
		}
		o := rt.m.Objects.Resolve(this.Object())
		if o == nil || o.Kind != jsobject.KindArray {
			return jsvalue.UndefinedValue(), nil
		}
		o.ArrayElems = append(o.ArrayElems, args...)
		return jsvalue.NumberValue(float64(len(o.ArrayElems))), nil
	})

	rt.m.SetMember(ctor, "isArray", rt.m.FunctionNew(func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if len(args) == 0 || !args[0].IsObject() {
			return jsvalue.BooleanValue(false), nil
		}
		o := rt.m.Objects.Resolve(args[0].Object())
		return jsvalue.BooleanValue(o != nil && o.Kind == jsobject.KindArray), nil
	}))

	rt.m.SetMember(ctor, "from", rt.m.FunctionNew(func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if len(args) == 0 {
			return jsvalue.UndefinedValue(), rt.m.Throw(jsvalue.StringValue(rt.m.Strings.Intern("TypeError: Array.from requires an argument")))
		}
		values := rt.arrayFromSource(args[0])
		if len(args) > 1 {
			mapped := make([]jsvalue.Value, len(values))
			for i, v := range values {
				r, thrown := rt.m.Call(args[1], jsvalue.UndefinedValue(), []jsvalue.Value{v, jsvalue.NumberValue(float64(i))})
				if thrown != nil {
					return jsvalue.UndefinedValue(), thrown
				}
				mapped[i] = r
			}
			values = mapped
		}
		return rt.m.ArrayNew(values), nil
	}))
}

// arrayFromSource collects the element sequence Array.from iterates: a
// string's runes (each re-interned as its own single-character string, so
// Array.from("ab") produces a length-2 array of "a" and "b"), an existing
// Array's elements, or any other object's 0..length-1 indexed members.
func (rt *Runtime) arrayFromSource(src jsvalue.Value) []jsvalue.Value {
	if src.IsString() {
		s := rt.m.Strings.String(src.StringHandle())
		runes := []rune(s)
		values := make([]jsvalue.Value, len(runes))
		for i, r := range runes {
			values[i] = jsvalue.StringValue(rt.m.Strings.Intern(string(r)))
		}
		return values
	}
	if !src.IsObject() {
		return nil
	}
	if o := rt.m.Objects.Resolve(src.Object()); o != nil && o.Kind == jsobject.KindArray {
		return append([]jsvalue.Value(nil), o.ArrayElems...)
	}
	length := int(rt.m.Member(src, "length").Number())
	values := make([]jsvalue.Value, 0, length)
	for i := 0; i < length; i++ {
		values = append(values, rt.m.Member(src, strconv.Itoa(i)))
	}
	return values
}

// installError wires the Error global: the constructor stamps "message"
// and "name" as own properties the way builtins/error.rs's Named/get
// dispatch exposes them, and the prototype's toString formats them the
// conventional "Name: message" way.
func (rt *Runtime) installError(proto jsvalue.Value) {
	rt.m.SetMember(proto, "name", jsvalue.StringValue(rt.m.Strings.Intern("Error")))
	rt.method(proto, "toString", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		name := rt.m.DisplayString(rt.m.Member(this, "name"))
		msgVal := rt.m.Member(this, "message")
		if msgVal.IsUndefined() {
			return jsvalue.StringValue(rt.m.Strings.Intern(name)), nil
		}
		return jsvalue.StringValue(rt.m.Strings.Intern(name + ": " + rt.m.DisplayString(msgVal))), nil
	})
	rt.defineGlobalCtor("Error", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		ref := rt.m.Objects.FromInner(jsobject.KindError)
		inst := jsvalue.ObjectValue(ref)
		if o := rt.m.Objects.Resolve(ref); o != nil && len(args) > 0 {
			o.Message = rt.m.DisplayString(args[0])
			rt.m.SetMember(inst, "message", args[0])
		}
		return inst, nil
	})
}

// installPromise wires a Promise minimal enough to satisfy the engine's
// no-native-event-loop contract: the executor runs synchronously, resolve/
// reject stash the settled value/reason as own properties, and then
// invokes its callback immediately against whatever is already settled.
func (rt *Runtime) installPromise(proto jsvalue.Value) {
	settle := func(ref jsvalue.ObjectRef, key string, state string) jsobject.NativeFn {
		return func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
			inst := jsvalue.ObjectValue(ref)
			rt.m.SetMember(inst, "state", jsvalue.StringValue(rt.m.Strings.Intern(state)))
			if len(args) > 0 {
				rt.m.SetMember(inst, key, args[0])
			}
			return jsvalue.UndefinedValue(), nil
		}
	}

	rt.method(proto, "then", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		state := rt.m.DisplayString(rt.m.Member(this, "state"))
		switch {
		case state == "fulfilled" && len(args) > 0 && args[0].IsObject():
			return rt.m.Call(args[0], jsvalue.UndefinedValue(), []jsvalue.Value{rt.m.Member(this, "value")})
		case state == "rejected" && len(args) > 1 && args[1].IsObject():
			return rt.m.Call(args[1], jsvalue.UndefinedValue(), []jsvalue.Value{rt.m.Member(this, "reason")})
		default:
			return this, nil
		}
	})

	ctor := rt.defineGlobalCtor("Promise", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		ref := rt.m.Objects.FromInner(jsobject.KindPromise)
		inst := jsvalue.ObjectValue(ref)
		rt.m.SetMember(inst, "state", jsvalue.StringValue(rt.m.Strings.Intern("pending")))
		if len(args) == 0 || !args[0].IsObject() {
			return inst, nil
		}
		resolveFn := rt.m.FunctionNew(settle(ref, "value", "fulfilled"))
		rejectFn := rt.m.FunctionNew(settle(ref, "reason", "rejected"))
		if _, thrown := rt.m.Call(args[0], jsvalue.UndefinedValue(), []jsvalue.Value{resolveFn, rejectFn}); thrown != nil {
			rt.m.SetMember(inst, "state", jsvalue.StringValue(rt.m.Strings.Intern("rejected")))
			rt.m.SetMember(inst, "reason", thrown.Value)
		}
		return inst, nil
	})

	rt.m.SetMember(ctor, "resolve", rt.m.FunctionNew(func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		ref := rt.m.Objects.FromInner(jsobject.KindPromise)
		inst := jsvalue.ObjectValue(ref)
		rt.m.SetMember(inst, "state", jsvalue.StringValue(rt.m.Strings.Intern("fulfilled")))
		if len(args) > 0 {
			rt.m.SetMember(inst, "value", args[0])
		}
		return inst, nil
	}))
}

// installString wires the String global. Called without `new`, String(x)
// just coerces x to a primitive string, the form this runtime supports;
// it never allocates a KindString wrapper object (no script-visible
// primitive-boxing path exists beyond internal/abi's stringMember).
func (rt *Runtime) installString(proto jsvalue.Value) {
	rt.defineGlobalCtor("String", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if len(args) == 0 {
			return jsvalue.StringValue(rt.m.Strings.Intern("")), nil
		}
		return jsvalue.StringValue(rt.m.Strings.Intern(rt.m.DisplayString(args[0]))), nil
	})
}

// installSymbol wires the Symbol global and its static for/keyFor pair.
// Symbol.for interns through rt.reg when Config.SymbolRegistry is set;
// otherwise it degrades to a plain Symbol(key) allocation, consistent
// with SymbolFor's documented opt-in interning.
func (rt *Runtime) installSymbol(proto jsvalue.Value) {
	ctor := rt.defineGlobalCtor("Symbol", proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		desc := ""
		if len(args) > 0 {
			desc = rt.m.DisplayString(args[0])
		}
		return jsvalue.SymbolValue(rt.m.Symbols.New(desc)), nil
	})
	rt.m.SetMember(ctor, "for", rt.m.FunctionNew(func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		key := ""
		if len(args) > 0 {
			key = rt.m.DisplayString(args[0])
		}
		if rt.reg != nil {
			return jsvalue.SymbolValue(rt.reg.For(key)), nil
		}
		return jsvalue.SymbolValue(rt.m.Symbols.New(key)), nil
	}))
}

// installSet wires Set and WeakSet (sharing this one helper, since both
// are thin wrappers over internal/jsobject.Store's mapset.Set-backed
// add/has/delete/size operations) under the given global name.
func (rt *Runtime) installSet(proto jsvalue.Value, kind jsobject.Kind) {
	name := "Set"
	if kind == jsobject.KindWeakSet {
		name = "WeakSet"
	}

	rt.method(proto, "add", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if this.IsObject() && len(args) > 0 {
			rt.m.Objects.SetAdd(this.Object(), args[0])
		}
		return this, nil
	})
	rt.method(proto, "has", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if !this.IsObject() || len(args) == 0 {
			return jsvalue.BooleanValue(false), nil
		}
		return jsvalue.BooleanValue(rt.m.Objects.SetHas(this.Object(), args[0])), nil
	})
	rt.method(proto, "delete", func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		if !this.IsObject() || len(args) == 0 {
			return jsvalue.BooleanValue(false), nil
		}
		return jsvalue.BooleanValue(rt.m.Objects.SetDelete(this.Object(), args[0])), nil
	})

	rt.defineGlobalCtor(name, proto, func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		ref := rt.m.Objects.FromInner(kind)
		if len(args) > 0 {
			for _, v := range rt.arrayFromSource(args[0]) {
				rt.m.Objects.SetAdd(ref, v)
			}
		}
		return jsvalue.ObjectValue(ref), nil
	})
}
