// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package hostbind lifts typed native Go functions to the uniform ABI
// call shape func(this Value, args []Value) (Value, *Thrown), ported from the
// original engine's bindgen.rs bind_function/Bindable/Returnable/Last
// trait family.
//
// The Rust source generates one trait impl per argument-tuple arity via
// the gen_args! macro (up to 25 parameters). Go has no macro system and
// no variadic generics over heterogeneous tuples, so this is ported using
// reflection instead — the same approach encoding/json and net/rpc take
// for "adapt an arbitrary typed Go value to a uniform wire shape".
package hostbind

import (
	"fmt"
	"reflect"

	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
)

// Bindable converts an incoming JS argument into a Go value of a specific
// type, ported from bindgen.rs's Bindable trait.
type Bindable interface {
	FromValue(v jsvalue.Value) (reflect.Value, error)
}

// Returnable converts a Go return value back into a JS Value, ported from
// bindgen.rs's Returnable trait.
type Returnable interface {
	ToValue(v reflect.Value) jsvalue.Value
}

// Env supplies the coercion primitives Bindable/Returnable implementations
// need without importing internal/strtab or internal/jsobject directly
// from every conversion site.
type Env struct {
	StringToGo   func(jsvalue.StringHandle) string
	GoToString   func(string) jsvalue.StringHandle
	NumberEnv    jsvalue.StringEnv
	Objects      *jsobject.Store
}

// bindArg picks a coercion strategy by switching on the target Go
// reflect.Kind at each call, with no package-level table, so Env (and thus
// the active string table) can vary per Runtime.
func bindArg(t reflect.Type, v jsvalue.Value, env Env) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Float64, reflect.Float32:
		return reflect.ValueOf(v.ToFloat(env.NumberEnv.ToNumber)).Convert(t), nil
	case reflect.Int64, reflect.Int32, reflect.Int, reflect.Int16, reflect.Int8:
		if v.IsBigInt() {
			return reflect.ValueOf(v.BigInt()).Convert(t), nil
		}
		return reflect.ValueOf(int64(v.ToFloat(env.NumberEnv.ToNumber))).Convert(t), nil
	case reflect.Bool:
		return reflect.ValueOf(v.ToBool()), nil
	case reflect.String:
		if !v.IsString() {
			return reflect.Value{}, fmt.Errorf("hostbind: expected string argument, got %s", v.Kind())
		}
		if env.StringToGo == nil {
			return reflect.ValueOf(""), nil
		}
		return reflect.ValueOf(env.StringToGo(v.StringHandle())), nil
	case reflect.Struct:
		if t == reflect.TypeOf(jsvalue.Value{}) {
			return reflect.ValueOf(v), nil
		}
	case reflect.Ptr:
		// Option<T>-style: nil for undefined/null, else recurse on the
		// pointed-to type, ported from Bindable's Option<T> impl.
		if v.IsNullish() {
			return reflect.Zero(t), nil
		}
		inner, err := bindArg(t.Elem(), v, env)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	return reflect.Value{}, fmt.Errorf("hostbind: unsupported argument type %s", t)
}

func bindReturn(rv reflect.Value, env Env) jsvalue.Value {
	if !rv.IsValid() {
		return jsvalue.UndefinedValue()
	}
	if rv.Type() == reflect.TypeOf(jsvalue.Value{}) {
		return rv.Interface().(jsvalue.Value)
	}
	switch rv.Kind() {
	case reflect.Float64, reflect.Float32:
		return jsvalue.NumberValue(rv.Float())
	case reflect.Int64, reflect.Int32, reflect.Int, reflect.Int16, reflect.Int8:
		return jsvalue.NumberValue(float64(rv.Int()))
	case reflect.Bool:
		return jsvalue.BooleanValue(rv.Bool())
	case reflect.String:
		if env.GoToString == nil {
			return jsvalue.UndefinedValue()
		}
		return jsvalue.StringValue(env.GoToString(rv.String()))
	case reflect.Ptr:
		if rv.IsNil() {
			return jsvalue.UndefinedValue()
		}
		return bindReturn(rv.Elem(), env)
	case reflect.Slice:
		// Returnable's Vec<T> impl: convert to a JS Array-kind Object when
		// an Objects store is available, else fall back to undefined.
		if env.Objects == nil {
			return jsvalue.UndefinedValue()
		}
		elems := make([]jsvalue.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems[i] = bindReturn(rv.Index(i), env)
		}
		ref := env.Objects.FromInner(jsobject.KindArray)
		if o := env.Objects.Resolve(ref); o != nil {
			o.ArrayElems = elems
		}
		return jsvalue.ObjectValue(ref)
	default:
		return jsvalue.UndefinedValue()
	}
}

// Bind wraps fn — which must be a Go func whose first parameter is the JS
// `this` value (jsvalue.Value), followed by zero or more bindable
// parameters, optionally ending in a variadic "rest" slice, and returning
// either a single bindable value or (value, error) — into the ABI call
// shape. The error return becomes a JS throw via jsobject.Thrown, mirroring
// bindgen.rs's call_raw catch-unwind-to-(Value,bool) boundary.
func Bind(fn interface{}, env Env) (jsobject.NativeFn, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("hostbind: Bind requires a func, got %s", ft)
	}
	if ft.NumIn() < 1 {
		return nil, fmt.Errorf("hostbind: bound func must take `this jsvalue.Value` as its first parameter")
	}

	return func(this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
		callArgs := make([]reflect.Value, ft.NumIn())
		callArgs[0] = reflect.ValueOf(this)

		fixed := ft.NumIn() - 1
		if ft.IsVariadic() {
			fixed--
		}

		for i := 0; i < fixed; i++ {
			var arg jsvalue.Value
			if i < len(args) {
				arg = args[i]
			} else {
				arg = jsvalue.UndefinedValue()
			}
			bound, err := bindArg(ft.In(i+1), arg, env)
			if err != nil {
				return jsvalue.UndefinedValue(), &jsobject.Thrown{Value: jsvalue.UndefinedValue()}
			}
			callArgs[i+1] = bound
		}

		if ft.IsVariadic() {
			restStart := fixed
			if restStart > len(args) {
				restStart = len(args)
			}
			rest := args[restStart:]
			elemType := ft.In(ft.NumIn() - 1).Elem()
			if elemType == reflect.TypeOf(jsvalue.Value{}) {
				callArgs[ft.NumIn()-1] = reflect.ValueOf(rest)
			} else {
				sl := reflect.MakeSlice(ft.In(ft.NumIn()-1), len(rest), len(rest))
				for i, a := range rest {
					bound, err := bindArg(elemType, a, env)
					if err == nil {
						sl.Index(i).Set(bound)
					}
				}
				callArgs[ft.NumIn()-1] = sl
			}
			results := fv.CallSlice(callArgs)
			return unpackResults(results, env)
		}

		results := fv.Call(callArgs)
		return unpackResults(results, env)
	}, nil
}

func unpackResults(results []reflect.Value, env Env) (jsvalue.Value, *jsobject.Thrown) {
	switch len(results) {
	case 0:
		return jsvalue.UndefinedValue(), nil
	case 1:
		return bindReturn(results[0], env), nil
	case 2:
		if errVal := results[1]; !errVal.IsNil() {
			err := errVal.Interface().(error)
			msg := jsvalue.UndefinedValue()
			if env.GoToString != nil {
				msg = jsvalue.StringValue(env.GoToString(err.Error()))
			}
			return jsvalue.UndefinedValue(), &jsobject.Thrown{Value: msg}
		}
		return bindReturn(results[0], env), nil
	default:
		return jsvalue.UndefinedValue(), nil
	}
}
