package structidx_test

import (
	"math/rand"
	"testing"

	"github.com/soypat/fabfield/fieldrender"
	"github.com/soypat/fabfield/structidx"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms3"
)

// intRecords returns hash and equality functions over a buffer of integers.
func intRecords(buf *[]int) (structidx.HashFunc, structidx.EqualFunc) {
	hash := func(h int) uint64 { return uint64((*buf)[h]) * 0x9e3779b97f4a7c15 }
	eq := func(a, b int) bool { return (*buf)[a] == (*buf)[b] }
	return hash, eq
}

func TestSetDuplicatePoint(t *testing.T) {
	var pb structidx.PointBuffer
	hash := func(h int) uint64 {
		p := pb.At(h)
		return uint64(p.X)*73856093 ^ uint64(p.Y)*19349663 ^ uint64(p.Z)*83492791
	}
	eq := func(a, b int) bool { return pb.At(a) == pb.At(b) }
	set := structidx.NewSet(hash, eq)
	p := md3.Vec{X: 1, Y: 2, Z: 3}
	h0 := pb.Append(p)
	if _, isNew := set.Add(h0); !isNew {
		t.Fatal("first insert should be new")
	}
	h1 := pb.Append(p)
	existing, isNew := set.Add(h1)
	if isNew {
		t.Fatal("second insert of same point should be a duplicate")
	}
	if existing != h0 {
		t.Errorf("duplicate aliased handle %d, want %d", existing, h0)
	}
	if keys := set.Keys(nil); len(keys) != 1 || keys[0] != h0 {
		t.Errorf("keys %v, want [%d]", keys, h0)
	}
	if set.Len() != 1 {
		t.Errorf("len %d, want 1", set.Len())
	}
}

func TestSetResizePreserves(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var buf []int
	hash, eq := intRecords(&buf)
	set := structidx.NewSet(hash, eq)
	startCap := set.Cap()
	distinct := map[int]int{}
	for i := 0; i < 5000; i++ {
		v := rng.Intn(3000)
		buf = append(buf, v)
		h := len(buf) - 1
		existing, isNew := set.Add(h)
		first, seen := distinct[v]
		if isNew == seen {
			t.Fatalf("value %d: isNew=%v but seen before=%v", v, isNew, seen)
		}
		if !seen {
			distinct[v] = h
		} else if existing != first {
			t.Fatalf("value %d aliased to %d, want %d", v, existing, first)
		}
	}
	if set.Len() != len(distinct) {
		t.Errorf("len %d, want %d", set.Len(), len(distinct))
	}
	if set.Cap() <= startCap {
		t.Errorf("set did not grow from capacity %d", startCap)
	}
	if set.Len()*4 > set.Cap()*3 {
		t.Errorf("load factor exceeded: %d entries in %d slots", set.Len(), set.Cap())
	}
	for v, h := range distinct {
		buf = append(buf, v)
		got, ok := set.Find(len(buf) - 1)
		if !ok || got != h {
			t.Fatalf("value %d: Find = %d,%v want %d", v, got, ok, h)
		}
	}
	if len(set.Keys(nil)) != len(distinct) {
		t.Error("keys length mismatch")
	}
	set.Clear()
	if set.Len() != 0 || set.Contains(0) {
		t.Error("set not empty after Clear")
	}
}

func TestMap(t *testing.T) {
	var buf []int
	hash, eq := intRecords(&buf)
	m := structidx.NewMap(hash, eq)
	for i := 0; i < 100; i++ {
		buf = append(buf, i%40)
		key, isNew := m.Put(i, 10*i)
		if isNew != (i < 40) {
			t.Fatalf("put %d: isNew=%v", i, isNew)
		}
		if key != i%40 {
			t.Fatalf("put %d returned key %d, want %d", i, key, i%40)
		}
	}
	if m.Len() != 40 {
		t.Fatalf("len %d, want 40", m.Len())
	}
	for k := 0; k < 40; k++ {
		v, ok := m.Get(k)
		if !ok || v != 10*k {
			t.Errorf("get %d = %d,%v want %d", k, v, ok, 10*k)
		}
	}
	if !m.Update(3, -1) {
		t.Error("update of present key failed")
	}
	if v, _ := m.Get(43); v != -1 {
		t.Errorf("equal key lookup after update = %d, want -1", v)
	}
	entries := m.EntrySet(nil)
	keys, values := m.Keys(nil), m.Values(nil)
	if len(entries) != 2*m.Len() || len(keys) != m.Len() || len(values) != m.Len() {
		t.Fatalf("entry set %d, keys %d, values %d", len(entries), len(keys), len(values))
	}
	for i := range keys {
		if entries[2*i] != keys[i] || entries[2*i+1] != values[i] {
			t.Fatalf("entry %d mismatch", i)
		}
		want := 10 * keys[i]
		if keys[i] == 3 {
			want = -1
		}
		if values[i] != want {
			t.Errorf("key %d value %d, want %d", keys[i], values[i], want)
		}
	}
	buf = append(buf, 1000)
	if _, ok := m.Get(len(buf) - 1); ok {
		t.Error("found absent key")
	}
	m.Clear()
	if m.Len() != 0 {
		t.Error("map not empty after Clear")
	}
}

func TestPointSetWeld(t *testing.T) {
	const eps = 1e-3
	ps, err := structidx.NewPointSet(eps)
	if err != nil {
		t.Fatal(err)
	}
	// Straddles a cell border.
	a := md3.Vec{X: 0.9999 * eps, Y: 5, Z: -2}
	b := md3.Vec{X: 1.0001 * eps, Y: 5, Z: -2}
	ha, isNew := ps.Add(a)
	if !isNew {
		t.Fatal("first point should be new")
	}
	hb, isNew := ps.Add(b)
	if isNew || hb != ha {
		t.Errorf("near point across cell border not welded: %d,%v", hb, isNew)
	}
	_, isNew = ps.Add(md3.Vec{X: 3 * eps, Y: 5, Z: -2})
	if !isNew {
		t.Error("far point welded")
	}
	if ps.Len() != 2 {
		t.Errorf("len %d, want 2", ps.Len())
	}
	if _, ok := ps.Find(md3.Vec{X: 0.5 * eps, Y: 5, Z: -2}); !ok {
		t.Error("Find missed point within eps")
	}
	if _, err := structidx.NewPointSet(0); err == nil {
		t.Error("expected error for zero epsilon")
	}
}

func TestPointSetRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	ps, _ := structidx.NewPointSet(1e-6)
	var pts []md3.Vec
	for i := 0; i < 2000; i++ {
		p := md3.Vec{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64()*10 - 5}
		pts = append(pts, p)
		if _, isNew := ps.Add(p); !isNew {
			t.Fatalf("random point %d welded", i)
		}
	}
	for i, p := range pts {
		jitter := md3.Vec{X: 1e-7, Y: -1e-7, Z: 5e-7}
		h, isNew := ps.Add(md3.Add(p, jitter))
		if isNew || h != i {
			t.Fatalf("jittered point %d: handle %d isNew %v", i, h, isNew)
		}
	}
}

func tetrahedron() []ms3.Triangle {
	v := [4]ms3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}}
	return []ms3.Triangle{
		{v[0], v[2], v[1]},
		{v[0], v[1], v[3]},
		{v[0], v[3], v[2]},
		{v[1], v[2], v[3]},
	}
}

func TestMeshBuilder(t *testing.T) {
	mb, err := structidx.NewMeshBuilder(1e-5)
	if err != nil {
		t.Fatal(err)
	}
	for _, tri := range tetrahedron() {
		if !mb.AddTriangle(tri) {
			t.Fatal("mesh builder stopped stream")
		}
	}
	// Collapses to a segment after welding.
	mb.AddTriangle(ms3.Triangle{{X: 5}, {X: 5, Y: 1e-6}, {X: 6}})
	if len(mb.Vertices()) != 6 {
		t.Errorf("vertices %d, want 6", len(mb.Vertices()))
	}
	if len(mb.Faces()) != 4 || mb.Degenerate() != 1 {
		t.Errorf("faces %d degenerate %d", len(mb.Faces()), mb.Degenerate())
	}
	var count int
	n := mb.WriteTo(fieldrender.TriangleSinkFunc(func(ms3.Triangle) bool { count++; return count < 2 }))
	if n != 2 {
		t.Errorf("replay delivered %d, want 2", n)
	}
}

func TestMeshBuilderEuler(t *testing.T) {
	mb, _ := structidx.NewMeshBuilder(1e-5)
	for _, tri := range tetrahedron() {
		mb.AddTriangle(tri)
	}
	if chi := mb.EulerCharacteristic(); chi != 2 {
		t.Errorf("tetrahedron euler characteristic %d, want 2", chi)
	}
}
