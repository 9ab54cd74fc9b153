package main

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/shapekit/shapekit/shape"
)

// Built-in demo types covering every shape kind the builder handles.

type point struct {
	X int64
	Y int64
}

type serverConfig struct {
	Host    string
	Port    uint16
	Tags    []string
	Limits  map[string]int64
	Comment *string
}

type event struct {
	Click *point    `shape:"case"`
	Say   *string   `shape:"case"`
	Quit  *struct{} `shape:"case"`
}

type profile struct {
	Name   string
	Age    uint8
	Origin shape.Box[point]
}

var demoTypes = map[string]reflect.Type{
	"point":   reflect.TypeOf(point{}),
	"server":  reflect.TypeOf(serverConfig{}),
	"event":   reflect.TypeOf(event{}),
	"profile": reflect.TypeOf(profile{}),
}

var (
	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	offsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func main() {
	var (
		typeName    = flag.String("type", "", "Demo type to inspect")
		list        = flag.Bool("list", false, "List demo types and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *list {
		for _, name := range demoNames() {
			fmt.Println(name)
		}
		return
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *typeName == "" {
		fmt.Fprintln(os.Stderr, "Usage: inspect -type <name>")
		fmt.Fprintln(os.Stderr, "       inspect -list")
		fmt.Fprintln(os.Stderr, "       inspect -i  (interactive mode)")
		os.Exit(1)
	}

	t, ok := demoTypes[*typeName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown type %q; try -list\n", *typeName)
		os.Exit(1)
	}

	reg := shape.NewRegistry()
	s, err := reg.ShapeOf(t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(renderShape(s))
}

func demoNames() []string {
	names := make([]string, 0, len(demoTypes))
	for name := range demoTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderShape prints the shape tree, one line per node, guarding against
// recursive shapes.
func renderShape(s *shape.Shape) string {
	var b strings.Builder
	seen := make(map[*shape.Shape]bool)
	writeShape(&b, s, "", "", seen)
	return b.String()
}

func writeShape(b *strings.Builder, s *shape.Shape, label, indent string, seen map[*shape.Shape]bool) {
	b.WriteString(indent)
	if label != "" {
		b.WriteString(nameStyle.Render(label))
		b.WriteString(": ")
	}
	b.WriteString(s.Name)
	b.WriteString(" ")
	b.WriteString(kindStyle.Render(s.Kind.String()))
	b.WriteString(" ")
	b.WriteString(offsetStyle.Render(fmt.Sprintf("(size %d, align %d)", s.Size, s.Align)))
	b.WriteString("\n")

	if seen[s] {
		b.WriteString(indent + "  ")
		b.WriteString(offsetStyle.Render("(recursive)"))
		b.WriteString("\n")
		return
	}
	seen[s] = true
	defer delete(seen, s)

	child := indent + "  "
	switch s.Kind {
	case shape.KindStruct:
		for _, f := range s.Fields {
			writeShape(b, f.Shape, fmt.Sprintf("%s @%d", f.Name, f.Offset), child, seen)
		}
	case shape.KindVariant:
		for _, c := range s.Cases {
			writeShape(b, c.Payload, fmt.Sprintf("%s #%d", c.Name, c.Discriminant), child, seen)
		}
	case shape.KindArray, shape.KindSlice:
		writeShape(b, s.Elem, "elem", child, seen)
	case shape.KindMap:
		writeShape(b, s.Key, "key", child, seen)
		writeShape(b, s.Value, "value", child, seen)
	case shape.KindOption:
		writeShape(b, s.Elem, "some", child, seen)
	case shape.KindPointer:
		writeShape(b, s.Interior, "interior", child, seen)
	}
}
