// Package runtime lists the external runtime symbols the IR builder and
// back end may reference.
package runtime

// Symbols is the fixed set of runtime entry points the compiler may emit
// calls to. Every one must be declared "extern" in the assembled module.
var Symbols = []string{
	"__alloc",
	"memcpy",
	"print",
	"println",
	"getString",
	"getInt",
	"toString",
	"#string#_ctor_",
	"#string#length",
	"#string#substring",
	"#string#parseInt",
	"#string#ord",
	"#string#add",
	"#_array_#_ctor_",
	"#_array_#size",
}

var set map[string]bool

func init() {
	set = make(map[string]bool, len(Symbols))
	for _, s := range Symbols {
		set[s] = true
	}
}

// IsSymbol reports whether name is a known runtime symbol.
func IsSymbol(name string) bool { return set[name] }

// CtorName returns the synthetic constructor symbol for class name, e.g.
// "#T#_ctor_" for class T.
func CtorName(class string) string { return "#" + class + "#_ctor_" }

// InitGlobalsFunc is the synthetic function that initializes interned
// string-literal globals, invoked from main's prologue.
const InitGlobalsFunc = "_init_global_vars_"
