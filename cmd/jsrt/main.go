// Copyright 2024 The jsrt Authors
// This file is part of jsrt.
//
// jsrt is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Command jsrt is the engine's CLI: run a script, drop into a REPL,
// disassemble a script's compiled IR, or query a running Runtime's
// inspector endpoint. Structured the way a single-file compiler driver
// is (stdlib flag, -emit-style output selection) composed under a
// gopkg.in/urfave/cli.v1 app for the multi-command surface, the way
// go-ethereum's cmd/devp2p composes its subcommands.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"reflect"
	"unicode"

	"github.com/davecgh/go-spew/spew"
	"github.com/naoina/toml"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	jsrt "github.com/embedjs/jsrt"
	"github.com/embedjs/jsrt/internal/codegen"
	"github.com/embedjs/jsrt/internal/ir"
	"github.com/embedjs/jsrt/internal/parser"
	"github.com/embedjs/jsrt/internal/rtlog"
)

const version = "0.1.0"

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		if unicode.IsUpper(rune(field[0])) {
			return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
		}
		return nil
	},
}

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "TOML file of jsrt.Config fields (HeapPageSize, GCSweepInterval, InspectorAddr, ...)",
}

var optimizeFlag = cli.BoolTFlag{
	Name:  "optimize",
	Usage: "run internal/ir.Optimize before disassembling",
}

func main() {
	app := cli.NewApp()
	app.Name = "jsrt"
	app.Usage = "embeddable JavaScript engine runtime core"
	app.Version = version
	app.Commands = []cli.Command{runCommand, replCommand, disasmCommand, inspectCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jsrt:", err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (jsrt.Config, error) {
	cfg := jsrt.DefaultConfig()
	path := ctx.String(configFlag.Name)
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		if _, ok := err.(*toml.LineError); ok {
			return cfg, errors.New(path + ", " + err.Error())
		}
		return cfg, err
	}
	return cfg, nil
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run <script.js>",
	ArgsUsage: "<script.js>",
	Flags:     []cli.Flag{configFlag},
	Action:    runAction,
}

func runAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("usage: jsrt run <script.js>")
	}
	filename := ctx.Args().Get(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	rt := jsrt.New(cfg)
	defer rt.Close()

	if _, err := rt.Exec(filename, string(source)); err != nil {
		return err
	}
	return nil
}

var replCommand = cli.Command{
	Name:   "repl",
	Usage:  "start an interactive read-eval-print loop",
	Flags:  []cli.Flag{configFlag},
	Action: replAction,
}

// replAction loops Prompt -> Exec -> spew.Dump on the Runtime's root
// context, one script per line, with peterh/liner supplying history and
// line editing the way an interactive shell expects. Each line is Exec'd
// as its own top-level script sharing the same Runtime, so a `var` from
// one line is visible to the next.
func replAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	rt := jsrt.New(cfg)
	defer rt.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("jsrt", version, "- Ctrl-D to exit")
	n := 0
	for {
		input, err := line.Prompt("jsrt> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		n++

		val, err := rt.Exec(fmt.Sprintf("<repl:%d>", n), input)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		spew.Dump(val.Value())
	}
}

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "disasm <script.js>",
	ArgsUsage: "<script.js>",
	Flags:     []cli.Flag{optimizeFlag},
	Action:    disasmAction,
}

// disasmAction lowers a script to IR and renders each function's block
// graph as an olekukonko/tablewriter table: one row per instruction, its
// operands, and the static operator/field name, mirroring an objdump-style
// listing. internal/ir.Verify runs first so a malformed program is
// reported instead of rendered.
func disasmAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("usage: jsrt disasm <script.js>")
	}
	filename := ctx.Args().Get(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	prog, errs := parser.Parse(filename, string(source))
	if len(errs) > 0 {
		return fmt.Errorf("parse error: %v", errs[0])
	}
	irProg := codegen.Generate(prog)
	if ctx.BoolT(optimizeFlag.Name) {
		ir.Optimize(irProg)
	}
	if verifyErrs := ir.Verify(irProg); len(verifyErrs) > 0 {
		for _, ve := range verifyErrs {
			fmt.Fprintln(os.Stderr, ve.Error())
		}
		return errors.New("disasm: program failed verification")
	}

	for _, fn := range irProg.Functions {
		fmt.Printf("function %s (locals=%d, free=%v)\n", fn.Name, fn.Locals, fn.FreeVars)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"block", "result", "op", "operands", "field/func"})
		for _, b := range fn.Blocks {
			for _, inst := range b.Instructions {
				ops := make([]string, len(inst.Operands))
				for i, o := range inst.Operands {
					ops[i] = fmt.Sprintf("v%d", o.ID)
				}
				name := inst.FieldKey
				if inst.FuncName != "" {
					name = inst.FuncName
				}
				table.Append([]string{b.Label, fmt.Sprintf("v%d", inst.Result.ID), opName(inst.Op), fmt.Sprint(ops), name})
			}
			table.Append([]string{b.Label, "", "term", terminatorString(b.Terminator), ""})
		}
		table.Render()
		fmt.Println()
	}
	return nil
}

func opName(op ir.Op) string {
	names := map[ir.Op]string{
		ir.OpConst: "const", ir.OpArg: "arg", ir.OpPhi: "phi",
		ir.OpTryPush: "try_push", ir.OpTryPop: "try_pop",
		ir.OpResolveVar: "resolve_var", ir.OpSetVar: "set_var", ir.OpResolveArgument: "resolve_argument",
		ir.OpToBool: "to_bool", ir.OpThrow: "throw",
		ir.OpMember: "member", ir.OpSuperMember: "super_member", ir.OpSetMember: "set_member",
		ir.OpAssignMember: "assign_member", ir.OpSetMemberSpread: "set_member_spread",
		ir.OpCall: "call", ir.OpConstruct: "construct", ir.OpMemberCall: "member_call",
		ir.OpSuperMemberCall: "super_member_call", ir.OpTplNew: "tpl_new", ir.OpArrayNew: "array_new",
		ir.OpFunctionNew: "function_new", ir.OpNewObject: "new_object", ir.OpObjectFromInner: "object_from_inner",
		ir.OpAdd: "add", ir.OpSub: "sub", ir.OpMul: "mul", ir.OpDiv: "div", ir.OpMod: "mod", ir.OpExp: "exp",
		ir.OpBitAnd: "bit_and", ir.OpBitOr: "bit_or", ir.OpBitXor: "bit_xor",
		ir.OpLshift: "lshift", ir.OpRshift: "rshift", ir.OpUnsignedRshift: "unsigned_rshift",
		ir.OpEqeq: "eqeq", ir.OpEqeqeq: "eqeqeq", ir.OpNoteq: "noteq", ir.OpNoteqeq: "noteqeq",
		ir.OpLt: "lt", ir.OpLteq: "lteq", ir.OpGt: "gt", ir.OpGteq: "gteq",
		ir.OpIn: "in", ir.OpInstanceof: "instanceof",
		ir.OpAnd: "and", ir.OpOr: "or", ir.OpNullishCoalescing: "nullish_coalescing",
	}
	if n, ok := names[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", op)
}

func terminatorString(t ir.Terminator) string {
	switch v := t.(type) {
	case *ir.TermReturn:
		if v.Value == nil {
			return "return"
		}
		return fmt.Sprintf("return v%d", v.Value.ID)
	case *ir.TermBranch:
		return fmt.Sprintf("branch -> %s", v.Target.Label)
	case *ir.TermCondBranch:
		return fmt.Sprintf("cond_branch v%d ? %s : %s", v.Cond.ID, v.TrueBlk.Label, v.FalseBlk.Label)
	case *ir.TermThrow:
		return fmt.Sprintf("throw v%d", v.Value.ID)
	case *ir.TermHalt:
		return "halt"
	default:
		return "<missing>"
	}
}

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "inspect <base-url> <heap|vmctx>",
	ArgsUsage: "<base-url> <heap|vmctx>",
	Action:    inspectAction,
}

// inspectAction is a thin client for internal/inspector's debug HTTP
// surface: GET <base>/<endpoint>, pretty-print the JSON body.
func inspectAction(ctx *cli.Context) error {
	if ctx.NArg() < 2 {
		return errors.New("usage: jsrt inspect <base-url> <heap|vmctx>")
	}
	base, endpoint := ctx.Args().Get(0), ctx.Args().Get(1)
	if endpoint != "heap" && endpoint != "vmctx" {
		return fmt.Errorf("unknown inspector endpoint %q", endpoint)
	}

	resp, err := http.Get(base + "/" + endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var v interface{}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rtlog.SetRoot(rtlog.New(rtlog.NewTerminalHandler(os.Stderr, true)))
}
