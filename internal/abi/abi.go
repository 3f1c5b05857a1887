// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package abi implements the fixed Runtime ABI function catalogue that
// generated code calls into: resolve_var, set_var, member, call, add,
// eqeqeq, and the rest of the fixed operator/object surface, ported from
// the original engine's jit/builder.rs symbol table. internal/irvm's
// opcodes dispatch straight into this package instead of duplicating
// operator/object logic.
package abi

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/embedjs/jsrt/internal/inlinecache"
	"github.com/embedjs/jsrt/internal/jsobject"
	"github.com/embedjs/jsrt/internal/jsvalue"
	"github.com/embedjs/jsrt/internal/strtab"
	"github.com/embedjs/jsrt/internal/symtab"
	"github.com/embedjs/jsrt/internal/vmctx"
)

// Machine bundles every runtime component the ABI catalogue touches.
type Machine struct {
	Objects *jsobject.Store
	Strings *strtab.Table
	Symbols *symtab.Table
	ics     *inlinecache.Cache
}

func New(objects *jsobject.Store, strings *strtab.Table, symbols *symtab.Table) *Machine {
	return &Machine{Objects: objects, Strings: strings, Symbols: symbols, ics: inlinecache.New(inlinecache.DefaultSize)}
}

func (m *Machine) env() jsvalue.StringEnv { return m.Strings.Env() }

func (m *Machine) stringsEqual(a, b jsvalue.StringHandle) bool { return m.Strings.Equal(a, b) }
func (m *Machine) stringCompare(a, b jsvalue.StringHandle) int { return m.Strings.Compare(a, b) }

// --- Variable access -----------------------------------------------------

// ResolveVar implements resolve_var.
func (m *Machine) ResolveVar(ctx *vmctx.Context, name string) (jsvalue.Value, *jsobject.Thrown) {
	v, err := ctx.Get(name)
	if err != nil {
		return jsvalue.UndefinedValue(), m.errToThrown(err)
	}
	return v.(jsvalue.Value), nil
}

// SetVar implements set_var.
func (m *Machine) SetVar(ctx *vmctx.Context, name string, value jsvalue.Value) *jsobject.Thrown {
	if err := ctx.Set(name, value); err != nil {
		return m.errToThrown(err)
	}
	return nil
}

func (m *Machine) errToThrown(err error) *jsobject.Thrown {
	return &jsobject.Thrown{Value: jsvalue.StringValue(m.Strings.Intern(err.Error()))}
}

// ResolveArgument implements resolve_argument: args[idx] or undefined.
func (m *Machine) ResolveArgument(args []jsvalue.Value, idx int) jsvalue.Value {
	if idx < 0 || idx >= len(args) {
		return jsvalue.UndefinedValue()
	}
	return args[idx]
}

// --- Coercion / control ---------------------------------------------------

func (m *Machine) ToBool(v jsvalue.Value) bool { return v.ToBool() }

func (m *Machine) Throw(v jsvalue.Value) *jsobject.Thrown { return &jsobject.Thrown{Value: v} }

// --- Member access ---------------------------------------------------------

// Member implements the member ABI entry: Array's integer-keyed/length and
// Set's size get-intercepts run first, ahead of internal/inlinecache, since
// those keys are never own properties in the props/index map the cache
// indexes into. Everything else goes through the cache: a validated hit reads the
// slot directly, skipping internal/jsobject.Store's prototype-chain walk;
// a miss falls back to Store.Lookup and primes the cache for next time.
func (m *Machine) Member(this jsvalue.Value, key string) jsvalue.Value {
	if this.IsString() {
		return m.stringMember(this, key)
	}
	if !this.IsObject() {
		return jsvalue.UndefinedValue()
	}
	ref := this.Object()
	if v, ok := m.Objects.ArrayMember(ref, key); ok {
		return v
	}
	if v, ok := m.Objects.SetSizeMember(ref, key); ok {
		return v
	}
	if e, ok := m.ics.Lookup(ref, key); ok && m.Objects.SlotValid(e.Owner, key, e.Index) {
		return m.Objects.SlotValue(e.Owner, e.Index)
	}
	owner, idx, found := m.Objects.Lookup(ref, key)
	if !found {
		return jsvalue.UndefinedValue()
	}
	m.ics.Store(ref, key, inlinecache.Entry{Owner: owner, Index: idx})
	return m.Objects.SlotValue(owner, idx)
}

// stringMember implements member access on a primitive string value
// (auto-boxing: "ab".length, "ab".normalize(...)) without allocating a
// wrapper Object, since strings never carry their own property map. Any
// key other than the two covered here reports undefined rather than
// falling through to String.prototype, which this runtime doesn't wire
// primitive member access through.
func (m *Machine) stringMember(this jsvalue.Value, key string) jsvalue.Value {
	switch key {
	case "length":
		s := m.Strings.String(this.StringHandle())
		return jsvalue.NumberValue(float64(utf8.RuneCountInString(s)))
	case "normalize":
		return m.FunctionNew(func(_ jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
			form := "NFC"
			if len(args) > 0 && args[0].IsString() {
				form = m.Strings.String(args[0].StringHandle())
			}
			s := m.Strings.String(this.StringHandle())
			return jsvalue.StringValue(m.Strings.Intern(jsvalue.Normalize(s, form))), nil
		})
	default:
		return jsvalue.UndefinedValue()
	}
}

func (m *Machine) SuperMember(protoOf jsvalue.Value, key string) jsvalue.Value {
	o := m.Objects.Resolve(protoOf.Object())
	if o == nil || o.Prototype == 0 {
		return jsvalue.UndefinedValue()
	}
	return m.Objects.Member(o.Prototype, key)
}

// SetMember implements the set_member ABI entry. Invalidating the cache
// entry unconditionally (rather than only when the property didn't
// already exist as an own property) keeps this correct even though it
// gives up caching across the first write to a given (receiver, key):
// a plain value update leaves an own slot's index unchanged so the
// invalidation is unnecessary for that case, but a write that shadows an
// inherited property changes which object owns the slot, and telling the
// two cases apart would need the same Lookup this is trying to avoid.
func (m *Machine) SetMember(this jsvalue.Value, key string, value jsvalue.Value) bool {
	if !this.IsObject() {
		return false
	}
	ref := this.Object()
	if handled, wrote := m.Objects.ArraySetMember(ref, key, value); handled {
		if wrote {
			m.ics.Invalidate(ref, key)
		}
		return wrote
	}
	ok := m.Objects.SetMember(ref, key, value)
	if ok {
		m.ics.Invalidate(ref, key)
	}
	return ok
}

// AssignMember implements assign_member: read-modify-write for compound
// assignment operators (+=, -=, ...), ported from value.rs's assign_member
// AssignOp match. combine applies the operator to (current, rhs).
func (m *Machine) AssignMember(this jsvalue.Value, key string, rhs jsvalue.Value, combine func(a, b jsvalue.Value) jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	current := m.Member(this, key)
	next := combine(current, rhs)
	m.SetMember(this, key, next)
	return next, nil
}

// SetMemberSpread implements set_member_spread: copy every own enumerable
// property of src onto dst, used by object-literal spread and
// Object.assign-style callers.
func (m *Machine) SetMemberSpread(dst, src jsvalue.Value) {
	if !src.IsObject() {
		return
	}
	for _, k := range m.Objects.OwnKeys(src.Object()) {
		m.SetMember(dst, k, m.Member(src, k))
	}
}

// --- Calls and construction -------------------------------------------------

func (m *Machine) Call(fn jsvalue.Value, this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	if !fn.IsObject() {
		return jsvalue.UndefinedValue(), m.typeError("value is not a function")
	}
	o := m.Objects.Resolve(fn.Object())
	if o == nil || o.Call == nil {
		return jsvalue.UndefinedValue(), m.typeError("value is not callable")
	}
	return o.Call(this, args)
}

func (m *Machine) Construct(fn jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	if !fn.IsObject() {
		return jsvalue.UndefinedValue(), m.typeError("value is not a constructor")
	}
	o := m.Objects.Resolve(fn.Object())
	if o == nil || o.Construct == nil {
		return jsvalue.UndefinedValue(), m.typeError("value is not a constructor")
	}
	instRef := m.Objects.New()
	if proto := m.Member(fn, "prototype"); proto.IsObject() {
		if inst := m.Objects.Resolve(instRef); inst != nil {
			inst.Prototype = proto.Object()
		}
	}
	result, thrown := o.Construct(jsvalue.ObjectValue(instRef), args)
	if thrown != nil {
		return jsvalue.UndefinedValue(), thrown
	}
	if result.IsObject() {
		return result, nil
	}
	return jsvalue.ObjectValue(instRef), nil
}

func (m *Machine) MemberCall(this jsvalue.Value, key string, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	fn := m.Member(this, key)
	return m.Call(fn, this, args)
}

func (m *Machine) SuperMemberCall(protoOf jsvalue.Value, key string, this jsvalue.Value, args []jsvalue.Value) (jsvalue.Value, *jsobject.Thrown) {
	fn := m.SuperMember(protoOf, key)
	return m.Call(fn, this, args)
}

func (m *Machine) typeError(msg string) *jsobject.Thrown {
	return &jsobject.Thrown{Value: jsvalue.StringValue(m.Strings.Intern("TypeError: " + msg))}
}

// TplNew implements tpl_new: a template literal with no remaining
// ${} interpolation reduces to an ordinary string.
func (m *Machine) TplNew(raw string) jsvalue.Value {
	return jsvalue.StringValue(m.Strings.Intern(raw))
}

// ArrayNew implements array_new.
func (m *Machine) ArrayNew(elems []jsvalue.Value) jsvalue.Value {
	ref := m.Objects.FromInner(jsobject.KindArray)
	if o := m.Objects.Resolve(ref); o != nil {
		o.ArrayElems = elems
	}
	return jsvalue.ObjectValue(ref)
}

// FunctionNew implements function_new: wrap a codegen-produced or
// host-bound NativeFn as a callable Object.
func (m *Machine) FunctionNew(fn jsobject.NativeFn) jsvalue.Value {
	ref := m.Objects.FromInner(jsobject.KindFunction)
	if o := m.Objects.Resolve(ref); o != nil {
		o.Call = fn
		o.Construct = fn
	}
	return jsvalue.ObjectValue(ref)
}

// NewObject implements new_object.
func (m *Machine) NewObject() jsvalue.Value {
	return jsvalue.ObjectValue(m.Objects.New())
}

// ObjectFromInner implements object_from_inner for the built-in inner
// kinds (Map, Set, Error, ...).
func (m *Machine) ObjectFromInner(kind jsobject.Kind) jsvalue.Value {
	return jsvalue.ObjectValue(m.Objects.FromInner(kind))
}

// --- Binary operators --------------------------------------------------------

func (m *Machine) Add(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Add(a, b, m.env()) }
func (m *Machine) Sub(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Sub(a, b, m.env()) }
func (m *Machine) Mul(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Mul(a, b, m.env()) }
func (m *Machine) Div(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Div(a, b, m.env()) }
func (m *Machine) Mod(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Mod(a, b, m.env()) }
func (m *Machine) Exp(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Exp(a, b, m.env()) }

func (m *Machine) BitAnd(a, b jsvalue.Value) jsvalue.Value { return jsvalue.BitAnd(a, b, m.env()) }
func (m *Machine) BitOr(a, b jsvalue.Value) jsvalue.Value  { return jsvalue.BitOr(a, b, m.env()) }
func (m *Machine) BitXor(a, b jsvalue.Value) jsvalue.Value { return jsvalue.BitXor(a, b, m.env()) }
func (m *Machine) Lshift(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Lshift(a, b, m.env()) }
func (m *Machine) Rshift(a, b jsvalue.Value) jsvalue.Value { return jsvalue.Rshift(a, b, m.env()) }
func (m *Machine) UnsignedRshift(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.UnsignedRshift(a, b, m.env())
}

func (m *Machine) Eqeq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Eqeq(a, b, m.env(), m.stringsEqual)
}
func (m *Machine) Eqeqeq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.BooleanValue(jsvalue.Eqeqeq(a, b, m.stringsEqual))
}
func (m *Machine) Noteq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Noteq(a, b, m.env(), m.stringsEqual)
}
func (m *Machine) Noteqeq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Noteqeq(a, b, m.stringsEqual)
}
func (m *Machine) Lt(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Lt(a, b, m.env(), m.stringCompare)
}
func (m *Machine) Lteq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Lteq(a, b, m.env(), m.stringCompare)
}
func (m *Machine) Gt(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Gt(a, b, m.env(), m.stringCompare)
}
func (m *Machine) Gteq(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.Gteq(a, b, m.env(), m.stringCompare)
}

func (m *Machine) And(a, b jsvalue.Value) jsvalue.Value { return jsvalue.And(a, b) }
func (m *Machine) Or(a, b jsvalue.Value) jsvalue.Value   { return jsvalue.Or(a, b) }
func (m *Machine) NullishCoalescing(a, b jsvalue.Value) jsvalue.Value {
	return jsvalue.NullishCoalescing(a, b)
}

// In implements the `in` operator: key presence on the object or its
// prototype chain.
func (m *Machine) In(key jsvalue.Value, obj jsvalue.Value) jsvalue.Value {
	if !key.IsString() || !obj.IsObject() {
		return jsvalue.BooleanValue(false)
	}
	name := m.Strings.String(key.StringHandle())
	cur := obj.Object()
	for cur != 0 {
		o := m.Objects.Resolve(cur)
		if o == nil {
			break
		}
		for _, k := range m.Objects.OwnKeys(cur) {
			if k == name {
				return jsvalue.BooleanValue(true)
			}
		}
		cur = o.Prototype
	}
	return jsvalue.BooleanValue(false)
}

// PropertyKey implements ToPropertyKey for computed member access
// (obj[expr]): strings decode directly, everything else falls back to a
// number/boolean rendering, matching the ABI's member/set_member entries
// which this runtime's front end only ever calls with Object or String
// operands in practice.
func (m *Machine) PropertyKey(v jsvalue.Value) string {
	if v.IsString() {
		return m.Strings.String(v.StringHandle())
	}
	if v.IsNumber() {
		return m.Strings.String(m.Strings.FromFloat(v.Number()))
	}
	if v.IsBoolean() {
		return m.Strings.String(m.Strings.FromBool(v.Boolean()))
	}
	return ""
}

// DisplayString implements the ABI's coercion-to-string used by the
// conformance harness to render a completion value the same way a host
// console.log or String() call would, extending PropertyKey's
// string/number/boolean cases with the variants member access never needs:
// undefined, null, bigint, symbol, and a minimal object/array rendering.
func (m *Machine) DisplayString(v jsvalue.Value) string {
	switch v.Kind() {
	case jsvalue.Undefined:
		return "undefined"
	case jsvalue.Null:
		return "null"
	case jsvalue.BigInt:
		return fmt.Sprintf("%dn", v.BigInt())
	case jsvalue.Symbol:
		return fmt.Sprintf("Symbol(%d)", v.Symbol())
	case jsvalue.Object:
		if m.Objects.IsCallable(v.Object()) {
			return "function () { [native code] }"
		}
		obj := m.Objects.Resolve(v.Object())
		if obj != nil && obj.Kind == jsobject.KindArray {
			parts := make([]string, len(obj.ArrayElems))
			for i, e := range obj.ArrayElems {
				parts[i] = m.DisplayString(e)
			}
			return strings.Join(parts, ",")
		}
		return "[object Object]"
	default:
		return m.PropertyKey(v)
	}
}

// --- for-in/for-of iteration intrinsics ------------------------------------
//
// Neither iteration protocol is part of the fixed ABI catalogue, so
// internal/codegen lowers for-in/for-of to these three helpers
// via OpCall's FuncName ("@@iter_init"/"@@enum_init", "@@iter_has_next",
// "@@iter_next") instead of adding phantom Op constants. The iterator state
// is itself an ordinary plain Object carrying the materialized value/key
// list and a cursor, so it participates in the same heap/GC bookkeeping as
// any other allocation.

func (m *Machine) IterInit(forIn bool, target jsvalue.Value) jsvalue.Value {
	state := m.Objects.New()
	var values []jsvalue.Value
	if forIn {
		for _, k := range m.Objects.OwnKeys(target.Object()) {
			values = append(values, jsvalue.StringValue(m.Strings.Intern(k)))
		}
	} else if target.IsObject() {
		if o := m.Objects.Resolve(target.Object()); o != nil && o.Kind == jsobject.KindArray {
			values = append(values, o.ArrayElems...)
		}
	}
	if so := m.Objects.Resolve(state); so != nil {
		so.ArrayElems = values
	}
	m.SetMember(jsvalue.ObjectValue(state), "@@idx", jsvalue.NumberValue(0))
	return jsvalue.ObjectValue(state)
}

func (m *Machine) IterHasNext(state jsvalue.Value) bool {
	o := m.Objects.Resolve(state.Object())
	if o == nil {
		return false
	}
	idx := int(m.Member(state, "@@idx").Number())
	return idx < len(o.ArrayElems)
}

func (m *Machine) IterNext(state jsvalue.Value) jsvalue.Value {
	o := m.Objects.Resolve(state.Object())
	if o == nil {
		return jsvalue.UndefinedValue()
	}
	idx := int(m.Member(state, "@@idx").Number())
	if idx >= len(o.ArrayElems) {
		return jsvalue.UndefinedValue()
	}
	m.SetMember(state, "@@idx", jsvalue.NumberValue(float64(idx+1)))
	return o.ArrayElems[idx]
}

// Instanceof walks val's prototype chain looking for ctor's .prototype
// member object.
func (m *Machine) Instanceof(val, ctor jsvalue.Value) jsvalue.Value {
	if !val.IsObject() || !ctor.IsObject() {
		return jsvalue.BooleanValue(false)
	}
	proto := m.Member(ctor, "prototype")
	if !proto.IsObject() {
		return jsvalue.BooleanValue(false)
	}
	o := m.Objects.Resolve(val.Object())
	for o != nil && o.Prototype != 0 {
		if o.Prototype == proto.Object() {
			return jsvalue.BooleanValue(true)
		}
		o = m.Objects.Resolve(o.Prototype)
	}
	return jsvalue.BooleanValue(false)
}
