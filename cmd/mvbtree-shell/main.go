// Command mvbtree-shell is a small interactive demo over the mvbtree
// engine: open a file, register string-keyed/string-valued trees, and
// poke at them from a line-oriented REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mvbtree/mvbtree"
	"github.com/mvbtree/mvbtree/codec"
	"github.com/mvbtree/mvbtree/config"
	"github.com/mvbtree/mvbtree/integrity"
	"github.com/mvbtree/mvbtree/logger"
)

func main() {
	configPath := flag.String("config", "conf/mvbtree-shell.ini", "path to the shell's INI config file")
	dbName := flag.String("db", "shell.mvb", "data file name, created under the config's data_dir")
	flag.Parse()

	cfg := config.LoadShellConfig(*configPath)
	_ = logger.InitLogger(logger.Config{Level: cfg.LogLevel})

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "mvbtree-shell: creating data dir %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}

	path := filepath.Join(cfg.DataDir, *dbName)
	rm, err := mvbtree.Open(path, config.EngineOptions{PageSize: cfg.DefaultPageSize, LogLevel: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mvbtree-shell: open %s: %v\n", path, err)
		os.Exit(1)
	}
	defer rm.Close()

	fmt.Printf("mvbtree-shell: opened %s (page size %d)\n", path, rm.PageSize())
	fmt.Println("commands: trees | maketree <name> [dup] | put <tree> <key> <value> | get <tree> <key> | del <tree> <key> | browse <tree> | check | quit")

	trees := map[string]*mvbtree.Tree{}
	for _, name := range rm.ManagedTrees() {
		t, err := mvbtree.OpenTree(rm, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mvbtree-shell: reopening tree %q: %v\n", name, err)
			continue
		}
		trees[name] = t
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		runCommand(rm, trees, fields)
		fmt.Print("> ")
	}
}

func runCommand(rm *mvbtree.RecordManager, trees map[string]*mvbtree.Tree, fields []string) {
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)

	case "trees":
		for name := range trees {
			fmt.Println(name)
		}

	case "maketree":
		if len(fields) < 2 {
			fmt.Println("usage: maketree <name> [dup]")
			return
		}
		name := fields[1]
		allowDup := len(fields) > 2 && fields[2] == "dup"
		t, err := mvbtree.AddTree(rm, name, codec.StringCodec{}, codec.StringCodec{}, allowDup)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		trees[name] = t
		fmt.Println("ok")

	case "put":
		if len(fields) < 4 {
			fmt.Println("usage: put <tree> <key> <value>")
			return
		}
		t, ok := trees[fields[1]]
		if !ok {
			fmt.Println("error: no such tree")
			return
		}
		_, _, err := t.Insert(fields[2], strings.Join(fields[3:], " "))
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")

	case "get":
		if len(fields) < 3 {
			fmt.Println("usage: get <tree> <key>")
			return
		}
		t, ok := trees[fields[1]]
		if !ok {
			fmt.Println("error: no such tree")
			return
		}
		values, found, err := t.Get(fields[2], -1)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if !found {
			fmt.Println("(not found)")
			return
		}
		for _, v := range values {
			fmt.Println(v)
		}

	case "del":
		if len(fields) < 3 {
			fmt.Println("usage: del <tree> <key>")
			return
		}
		t, ok := trees[fields[1]]
		if !ok {
			fmt.Println("error: no such tree")
			return
		}
		_, found, err := t.Delete(fields[2])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("removed:", found)

	case "browse":
		if len(fields) < 2 {
			fmt.Println("usage: browse <tree>")
			return
		}
		t, ok := trees[fields[1]]
		if !ok {
			fmt.Println("error: no such tree")
			return
		}
		cur, err := t.Browse(-1)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for cur.Next() {
			e := cur.Entry()
			fmt.Printf("%v -> %v\n", e.Key, e.Values)
		}

	case "check":
		report, err := integrity.Check(rm)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("pages: %d total, %d free, %d live\n", report.TotalPages, report.FreePages, report.LivePages)
		if report.OK() {
			fmt.Println("ok")
			return
		}
		for _, p := range report.Problems {
			fmt.Println("problem:", p)
		}

	case "pagesize":
		fmt.Println(strconv.Itoa(int(rm.PageSize())))

	default:
		fmt.Println("unknown command:", fields[0])
	}
}
