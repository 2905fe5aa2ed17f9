package types

import "sync"

// Variable is mutable, explicit state (spec.md §3: "variables and fibers
// carry mutable state explicitly"). Reads/writes are guarded by a mutex so
// a Variable may safely be shared across fibers per spec.md §5's "reads of
// a variable observe the most-recently-committed write under a single
// global lock per variable."
type Variable struct {
	mu       sync.Mutex
	declared Type
	val      Value
	assigned bool
}

func NewVariable(declared Type) *Variable {
	return &Variable{declared: declared}
}

func (v *Variable) Kind() Kind { return KindVariable }

// Get reads the current contents, failing if never assigned (spec.md §4.5
// "get (read contents, failing on uninitialised)").
func (v *Variable) Get() (Value, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.assigned
}

// GetClearing reads and, if assigned, clears the slot (spec.md §4.4
// get-local-clearing / §4.5 get-clearing).
func (v *Variable) GetClearing() (Value, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	val, ok := v.val, v.assigned
	if ok {
		v.val = Value{}
		v.assigned = false
	}
	return val, ok
}

func (v *Variable) Set(val Value) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = val
	v.assigned = true
}

func (v *Variable) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.val = Value{}
	v.assigned = false
}

func (v *Variable) DeclaredType() Type { return v.declared }

func (v *Variable) String() string { return "a variable" }
func (v *Variable) Hash() uint32   { return 0 } // variables are reference-identity values
func (v *Variable) Immutable() Object {
	return v // variables are mutable by nature; "make immutable" only affects copies taken from it
}
func (v *Variable) Equals(o Object) bool { return o == Object(v) }
func (v *Variable) RuntimeType() Type    { return VariableType{Inner: v.declared} }

// TypeObject lets a Type value itself be passed around as a first-class
// Avail value (the "type" kind in spec.md §3).
type TypeObject struct{ T Type }

func (t *TypeObject) Kind() Kind        { return KindType }
func (t *TypeObject) String() string    { return t.T.String() }
func (t *TypeObject) Hash() uint32      { return hashString(t.T.String()) }
func (t *TypeObject) Immutable() Object { return t }
func (t *TypeObject) Equals(o Object) bool {
	ot, ok := o.(*TypeObject)
	return ok && typeEqual(t.T, ot.T)
}
func (t *TypeObject) RuntimeType() Type { return Meta(t.T) }

// Phrase is a parsed-but-uncompiled syntax fragment; the parser/grammar
// that produces phrases is out of scope (spec.md §1), so Phrase here is an
// opaque carrier kept for API completeness of the value sum.
type Phrase struct{ Tag string }

func (p *Phrase) Kind() Kind           { return KindPhrase }
func (p *Phrase) String() string       { return "phrase:" + p.Tag }
func (p *Phrase) Hash() uint32         { return hashString(p.Tag) }
func (p *Phrase) Immutable() Object    { return p }
func (p *Phrase) Equals(o Object) bool { return o == Object(p) }
func (p *Phrase) RuntimeType() Type    { return Primitive(KindPhrase) }

// Token is a single lexical token; like Phrase, the lexer producing them is
// out of scope, but primitives may still accept/return tokens opaquely.
type Token struct {
	Lexeme string
	Line   int
}

func (t *Token) Kind() Kind           { return KindToken }
func (t *Token) String() string       { return t.Lexeme }
func (t *Token) Hash() uint32         { return hashString(t.Lexeme) }
func (t *Token) Immutable() Object    { return t }
func (t *Token) Equals(o Object) bool { ot, ok := o.(*Token); return ok && ot.Lexeme == t.Lexeme }
func (t *Token) RuntimeType() Type    { return Primitive(KindToken) }

// Pojo wraps a foreign host-language object (spec.md §3 "pojo
// (foreign host-object)").
type Pojo struct {
	ClassName string
	Host      interface{}
}

func (p *Pojo) Kind() Kind           { return KindPojo }
func (p *Pojo) String() string       { return "pojo:" + p.ClassName }
func (p *Pojo) Hash() uint32         { return hashString(p.ClassName) }
func (p *Pojo) Immutable() Object    { return p }
func (p *Pojo) Equals(o Object) bool { return o == Object(p) }
func (p *Pojo) RuntimeType() Type    { return PojoType{ClassName: p.ClassName} }
