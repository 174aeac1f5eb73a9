package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func methodKey(class, method string) DefKey {
	return NewKey(Segment{Name: class, Kind: SegmentType}).Child(method, SegmentMethod)
}

func newTestDef(key DefKey, file string, start, end uint32) *Def {
	return &Def{Key: key, Kind: string(key.Kind()), Name: key.Name(), File: file, Span: Span{Start: start, End: end}}
}

// =============================================================================
// Keys
// =============================================================================

func TestDefKey_Renderings(t *testing.T) {
	t.Parallel()
	k := NewKey(Segment{Name: "App", Kind: SegmentNamespace}, Segment{Name: "Base", Kind: SegmentType}).
		Child("m", SegmentMethod)
	assert.Equal(t, "App/Base/m()", k.Path())
	assert.Equal(t, "./App/Base/m", k.TreePath())
	assert.Equal(t, "m", k.Name())
	assert.Equal(t, SegmentMethod, k.Kind())
	assert.Equal(t, "App/Base", k.Parent().Path())

	p := NewKey(Segment{Name: "Base", Kind: SegmentType}).Child("p", SegmentProperty)
	assert.Equal(t, "Base/$p", p.Path())
}

func TestDefKey_CandidateRendering(t *testing.T) {
	t.Parallel()
	c := NewCandidate(MaybeMethod, "m")
	assert.True(t, c.IsCandidate())
	assert.Equal(t, "(?M)m", c.Path())
	assert.Equal(t, "(?M)Base::m", c.WithReceiver("Base").Path())
	assert.False(t, methodKey("Base", "m").IsCandidate())
}

func TestDefKey_IDDistinguishesStructure(t *testing.T) {
	t.Parallel()
	// These render identically when joined naively with "/".
	a := NewKey(Segment{Name: "a/b", Kind: SegmentType})
	b := NewKey(Segment{Name: "a", Kind: SegmentType}, Segment{Name: "b", Kind: SegmentType})
	assert.NotEqual(t, a.ID(), b.ID())

	// Same name, different kind.
	m := NewKey(Segment{Name: "x", Kind: SegmentMethod})
	f := NewKey(Segment{Name: "x", Kind: SegmentFunction})
	assert.NotEqual(t, m.ID(), f.ID())

	// Candidates never collide with concrete keys or each other.
	assert.NotEqual(t, NewCandidate(MaybeMethod, "m").ID(), NewCandidate(MaybeProperty, "m").ID())
	assert.NotEqual(t, NewCandidate(MaybeMethod, "m").ID(), NewKey(Segment{Name: "m"}).ID())
	assert.NotEqual(t, NewCandidate(MaybeMethod, "m").ID(), NewCandidate(MaybeMethod, "m").WithReceiver("A").ID())

	// Units are part of identity.
	other := methodKey("Base", "m")
	other.Unit = "lib"
	assert.False(t, other.Equal(methodKey("Base", "m")))
	assert.True(t, methodKey("Base", "m").Equal(methodKey("Base", "m")))
}

func TestDefKey_EncodeKeepsKinds(t *testing.T) {
	t.Parallel()
	ns := NewKey(Segment{Name: "A", Kind: SegmentNamespace})
	cst := ns.Child("B", SegmentConstant)
	cls := ns.Child("B", SegmentType)
	assert.Equal(t, cst.Path(), cls.Path(), "display paths collide")
	assert.NotEqual(t, cst.Encode(), cls.Encode())
	assert.Equal(t, "namespace:A/type:B", cls.Encode())
	assert.Equal(t, "type:Base/method:m", methodKey("Base", "m").Encode())

	// Separators inside names are escaped.
	a := NewKey(Segment{Name: "a/b", Kind: SegmentType})
	b := NewKey(Segment{Name: "a", Kind: SegmentType}, Segment{Name: "b", Kind: SegmentType})
	assert.NotEqual(t, a.Encode(), b.Encode())
}

func TestDefKey_ChildDoesNotAlias(t *testing.T) {
	t.Parallel()
	base := NewKey(Segment{Name: "A", Kind: SegmentType})
	x := base.Child("x", SegmentMethod)
	y := base.Child("y", SegmentMethod)
	assert.Equal(t, "A/x()", x.Path())
	assert.Equal(t, "A/y()", y.Path())
}

// =============================================================================
// Collector
// =============================================================================

func TestCollector_RedefinitionKeepsPositionTakesContent(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)

	c.WriteDef(newTestDef(NewKey(Segment{Name: "main", Kind: SegmentFunction}), "a.php", 0, 10))
	c.WriteDef(newTestDef(NewKey(Segment{Name: "other", Kind: SegmentFunction}), "a.php", 20, 30))
	c.WriteDef(newTestDef(NewKey(Segment{Name: "main", Kind: SegmentFunction}), "b.php", 5, 15))

	defs := c.Defs()
	require.Len(t, defs, 2)
	assert.Equal(t, "main", defs[0].Name)
	assert.Equal(t, "b.php", defs[0].File, "newest content wins")
	assert.Equal(t, Span{Start: 5, End: 15}, defs[0].Span)
	assert.Equal(t, "other", defs[1].Name)
}

func TestCollector_EmitAddsExactlyOneSelfRef(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	d := newTestDef(methodKey("Base", "m"), "a.php", 3, 9)
	c.Emit(d)
	c.Emit(d)

	refs := c.Refs()
	require.Len(t, refs, 1)
	assert.True(t, refs[0].IsDef)
	assert.Equal(t, d.Span, refs[0].Span)
	assert.True(t, refs[0].Target.Equal(d.Key))
}

func TestCollector_WriteRefDedup(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	r := Ref{File: "a.php", Span: Span{Start: 1, End: 2}, Target: methodKey("A", "f")}
	c.WriteRef(r)
	c.WriteRef(r)
	r2 := r
	r2.IsCandidate = true
	c.WriteRef(r2)
	assert.Len(t, c.Refs(), 2)
}

func TestCollector_DefsNamed(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	c.Emit(newTestDef(methodKey("A", "run"), "a.php", 0, 1))
	c.Emit(newTestDef(methodKey("B", "run"), "a.php", 2, 3))
	c.Emit(newTestDef(methodKey("B", "stop"), "a.php", 4, 5))

	named := c.DefsNamed("run")
	require.Len(t, named, 2)
	assert.Equal(t, "A/run()", named[0].Key.Path())
	assert.Equal(t, "B/run()", named[1].Key.Path())
	assert.NotNil(t, c.Def(methodKey("B", "stop")))
	assert.Nil(t, c.Def(methodKey("C", "stop")))
}

func TestCollector_OutputSkipsCandidates(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	c.Emit(newTestDef(methodKey("Base", "m"), "a.php", 10, 20))
	c.WriteRef(Ref{File: "b.php", Span: Span{Start: 1, End: 2}, Target: NewCandidate(MaybeMethod, "m"), IsCandidate: true})

	out := c.Output()
	require.Len(t, out.Defs, 1)
	assert.Equal(t, "Base/m()", out.Defs[0].Path)
	assert.Equal(t, "./Base/m", out.Defs[0].TreePath)
	assert.Equal(t, "type:Base/method:m", out.Defs[0].Key)
	require.Len(t, out.Refs, 1)
	assert.True(t, out.Refs[0].Def)
	assert.Equal(t, out.Defs[0].Key, out.Refs[0].DefKey)
}

func TestCollector_FlushRunsAllHooks(t *testing.T) {
	t.Parallel()
	c := NewCollector(nil)
	var calls int
	c.OnFlush(func(*Collector) error { calls++; return errors.New("boom") })
	c.OnFlush(func(*Collector) error { calls++; return nil })

	err := c.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 2, calls)
}

func TestSourceUnit_Normalize(t *testing.T) {
	t.Parallel()
	u := &SourceUnit{Name: "p", Type: "php", Dir: "/src/p/", Files: []string{"/src/p/a/b.php", "./c.php", "d/../e.php"}}
	u.Normalize()
	assert.Equal(t, "/src/p", u.Dir)
	assert.Equal(t, []string{"a/b.php", "c.php", "e.php"}, u.Files)
}
