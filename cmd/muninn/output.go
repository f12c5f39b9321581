package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/stcorp/muninn/pkg/dbbackend"
	"github.com/stcorp/muninn/pkg/properties"
)

var (
	okLabel   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func reportOK(format string, args ...any) {
	if isTTY() {
		fmt.Printf("%s "+format+"\n", append([]any{okLabel("OK")}, args...)...)
		return
	}
	fmt.Printf(format+"\n", args...)
}

// printProperties renders a container's namespaces as tab-separated
// field/value pairs, core namespace first, the rest alphabetical.
func printProperties(props *properties.Container) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	ns := props.Namespaces()
	sort.Strings(ns)
	ordered := make([]string, 0, len(ns))
	for _, n := range ns {
		if n == "core" {
			ordered = append([]string{n}, ordered...)
		} else {
			ordered = append(ordered, n)
		}
	}
	for _, n := range ordered {
		fields := props.Namespace(n)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s.%s\t%s\n", n, k, fields[k].String())
		}
	}
}

// printRows renders dbbackend.Row results (Search output) as one
// line per product, core fields first.
func printRows(rows []dbbackend.Row) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, row := range rows {
		core := row["core"]
		fmt.Fprintf(w, "%s\t%s\t%s\n", core["uuid"].String(), core["product_type"].String(), core["product_name"].String())
	}
}
