package scene

import (
	"errors"
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/soypat/fabfield"
	"github.com/soypat/fabfield/fieldeval"
	"github.com/soypat/fabfield/forge/textfield"
	"github.com/soypat/fabfield/forge/threads"
	"github.com/soypat/geometry/md3"
)

// sexpField wraps a field so it can be passed between builtins.
type sexpField struct {
	f fieldeval.Field
}

func (s *sexpField) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(field %s %d)", s.f.Mode(), s.f.Channels())
}
func (s *sexpField) Type() *zygo.RegisteredType { return nil }

type sexpVec3 struct {
	vec md3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// state is shared by the builtins of a single evaluation.
type state struct {
	cfg   Config
	bld   fabfield.Builder
	font  *textfield.Font
	scene fieldeval.Field
}

func newState(cfg Config) *state {
	st := &state{cfg: cfg, font: cfg.Font}
	st.bld.SetFlags(fabfield.FlagNoDimensionPanic)
	st.bld.SetMode(cfg.Mode)
	return st
}

type builtin func(st *state, args kwArgs) (zygo.Sexp, error)

var builtins = map[string]builtin{
	"vec3":         vec3Builtin,
	"sphere":       sphereBuiltin,
	"box":          boxBuiltin,
	"cylinder":     cylinderBuiltin,
	"cone":         coneBuiltin,
	"torus":        torusBuiltin,
	"ring":         ringBuiltin,
	"triangle":     triangleBuiltin,
	"gyroid":       gyroidBuiltin,
	"text":         textBuiltin,
	"image":        imageBuiltin,
	"mesh":         meshBuiltin,
	"screw":        screwBuiltin,
	"bolt":         boltBuiltin,
	"union":        unionBuiltin,
	"intersection": intersectionBuiltin,
	"subtraction":  subtractionBuiltin,
	"complement":   complementBuiltin,
	"offset":       offsetBuiltin,
	"shell":        shellBuiltin,
	"translate":    translateBuiltin,
	"rotate":       rotateBuiltin,
	"scale":        scaleBuiltin,
	"symmetry":     symmetryBuiltin,
	"wallpaper":    wallpaperBuiltin,
	"periodic":     periodicBuiltin,
	"ring_wrap":    ringWrapBuiltin,
	"color":        colorBuiltin,
	"density":      modeBuiltin(fieldeval.ModeDensity),
	"distance":     modeBuiltin(fieldeval.ModeDistance),
	"scene":        sceneBuiltin,
}

// register installs the builtins into env. Builder errors raised while
// running a builtin are returned as the builtin's error.
func (st *state) register(env *zygo.Zlisp) {
	for name, fn := range builtins {
		display := strings.ReplaceAll(name, "_", "-")
		env.AddFunction(name, func(env *zygo.Zlisp, _ string, args []zygo.Sexp) (zygo.Sexp, error) {
			out, err := fn(st, parseArgs(args))
			if err == nil {
				err = st.bld.Err()
				st.bld.ClearErrors()
			}
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", display, err)
			}
			return out, nil
		})
	}
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

func (a kwArgs) want(n int) error {
	if len(a.positional) != n {
		return fmt.Errorf("want %d positional arguments, got %d", n, len(a.positional))
	}
	return nil
}

func (a kwArgs) atLeast(n int) error {
	if len(a.positional) < n {
		return fmt.Errorf("want at least %d positional arguments, got %d", n, len(a.positional))
	}
	return nil
}

func (a kwArgs) num(i int) (float64, error) {
	v, err := toFloat64(a.positional[i])
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return v, nil
}

// nums parses all positional arguments starting at i as numbers.
func (a kwArgs) nums(i int) ([]float64, error) {
	var out []float64
	for ; i < len(a.positional); i++ {
		v, err := a.num(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (a kwArgs) field(i int) (fieldeval.Field, error) {
	f, err := toField(a.positional[i])
	if err != nil {
		return nil, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return f, nil
}

func (a kwArgs) fields(i int) ([]fieldeval.Field, error) {
	var out []fieldeval.Field
	for ; i < len(a.positional); i++ {
		f, err := a.field(i)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (a kwArgs) vec(i int) (md3.Vec, error) {
	v, err := toVec3(a.positional[i])
	if err != nil {
		return md3.Vec{}, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return v, nil
}

// kwNum returns keyword argument name as a number or def if absent.
func (a kwArgs) kwNum(name string, def float64) (float64, error) {
	s, ok := a.kw[name]
	if !ok {
		return def, nil
	}
	v, err := toFloat64(s)
	if err != nil {
		return 0, fmt.Errorf(":%s: %w", name, err)
	}
	return v, nil
}

func (a kwArgs) kwBool(name string) (bool, error) {
	s, ok := a.kw[name]
	if !ok {
		return false, nil
	}
	b, ok := s.(*zygo.SexpBool)
	if !ok {
		return false, fmt.Errorf(":%s: expected boolean, got %s", name, s.SexpString(nil))
	}
	return b.Val, nil
}

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %s", s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %s", s.SexpString(nil))
}

func toField(s zygo.Sexp) (fieldeval.Field, error) {
	if f, ok := s.(*sexpField); ok {
		return f.f, nil
	}
	return nil, fmt.Errorf("expected field, got %s", s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (md3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return md3.Vec{}, fmt.Errorf("expected vec3, got %s", s.SexpString(nil))
}

func fieldResult(f fieldeval.Field) (zygo.Sexp, error) {
	return &sexpField{f: f}, nil
}

// (vec3 x y z)
func vec3Builtin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	return &sexpVec3{vec: md3.Vec{X: v[0], Y: v[1], Z: v[2]}}, nil
}

// (sphere r)
func sphereBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(1); err != nil {
		return nil, err
	}
	r, err := a.num(0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewSphere(r))
}

// (box x y z :round r)
func boxBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	round, err := a.kwNum("round", 0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewBox(v[0], v[1], v[2], round))
}

// (cylinder r h :round r)
func cylinderBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	round, err := a.kwNum("round", 0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewCylinder(v[0], v[1], round))
}

// (cone r1 r2 h)
func coneBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewCone(v[0], v[1], v[2]))
}

// (torus R r)
func torusBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewTorus(v[0], v[1]))
}

// (ring inner thickness ymin ymax)
func ringBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(4); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewRing(v[0], v[1], v[2], v[3]))
}

// (triangle (vec3 ...) (vec3 ...) (vec3 ...) thickness)
func triangleBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(4); err != nil {
		return nil, err
	}
	var verts [3]md3.Vec
	for i := range verts {
		v, err := a.vec(i)
		if err != nil {
			return nil, err
		}
		verts[i] = v
	}
	th, err := a.num(3)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewTriangle(verts[0], verts[1], verts[2], th))
}

// (gyroid period thickness :level l)
func gyroidBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	v, err := a.nums(0)
	if err != nil {
		return nil, err
	}
	level, err := a.kwNum("level", 0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.NewGyroid(v[0], v[1], level))
}

// (text "string" (vec3 sx sy sz) :spacing s)
func textBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	s, err := toString(a.positional[0])
	if err != nil {
		return nil, err
	}
	size, err := a.vec(1)
	if err != nil {
		return nil, err
	}
	spacing, err := a.kwNum("spacing", 0)
	if err != nil {
		return nil, err
	}
	if st.font == nil {
		st.font, err = textfield.GoRegular()
		if err != nil {
			return nil, err
		}
	}
	f, err := st.font.TextField(s, textfield.TextConfig{Size: size, Mode: st.bld.Mode(), LineSpacing: spacing})
	if err != nil {
		return nil, err
	}
	return fieldResult(f)
}

// (image "path" (vec3 sx sy sz) :base b :invert true :color true)
func imageBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if !st.cfg.AllowFiles {
		return nil, errors.New("file access disabled")
	}
	if err := a.want(2); err != nil {
		return nil, err
	}
	path, err := toString(a.positional[0])
	if err != nil {
		return nil, err
	}
	size, err := a.vec(1)
	if err != nil {
		return nil, err
	}
	base, err := a.kwNum("base", 0)
	if err != nil {
		return nil, err
	}
	invert, err := a.kwBool("invert")
	if err != nil {
		return nil, err
	}
	colorMap, err := a.kwBool("color")
	if err != nil {
		return nil, err
	}
	cfg := fabfield.ImageMapConfig{Path: path, Size: size, BaseThickness: base, Invert: invert}
	if colorMap {
		return fieldResult(st.bld.NewImageColorMap(cfg))
	}
	return fieldResult(st.bld.NewImageMap(cfg))
}

// (mesh "path.stl" :margin m)
func meshBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if !st.cfg.AllowFiles {
		return nil, errors.New("file access disabled")
	}
	if err := a.want(1); err != nil {
		return nil, err
	}
	path, err := toString(a.positional[0])
	if err != nil {
		return nil, err
	}
	margin, err := a.kwNum("margin", 0)
	if err != nil {
		return nil, err
	}
	f := st.bld.NewMeshField(fabfield.MeshFieldConfig{Path: path, Margin: margin})
	if err := f.Initialize(); err != nil {
		return nil, err
	}
	return fieldResult(f)
}

// (screw "M8" length)
func screwBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	iso, err := isoArg(a)
	if err != nil {
		return nil, err
	}
	length, err := a.num(1)
	if err != nil {
		return nil, err
	}
	f, err := threads.Screw(&st.bld, float32(length), iso)
	if err != nil {
		return nil, err
	}
	return fieldResult(f)
}

// (bolt "M8" total-length shank-length :knurl true :tolerance t)
func boltBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	iso, err := isoArg(a)
	if err != nil {
		return nil, err
	}
	lengths, err := a.nums(1)
	if err != nil {
		return nil, err
	}
	knurl, err := a.kwBool("knurl")
	if err != nil {
		return nil, err
	}
	tol, err := a.kwNum("tolerance", 0)
	if err != nil {
		return nil, err
	}
	style := threads.NutHex
	if knurl {
		style = threads.NutKnurl
	}
	f, err := threads.Bolt(&st.bld, threads.BoltParams{
		Thread:      iso,
		Style:       style,
		Tolerance:   float32(tol),
		TotalLength: float32(lengths[0]),
		ShankLength: float32(lengths[1]),
	})
	if err != nil {
		return nil, err
	}
	return fieldResult(f)
}

func isoArg(a kwArgs) (threads.ISO, error) {
	name, err := toString(a.positional[0])
	if err != nil {
		return threads.ISO{}, fmt.Errorf("argument 1: %w", err)
	}
	return threads.LookupISO(name)
}

// (union f1 f2 ... :k blend)
func unionBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	return combine(st, a, st.bld.Union, st.bld.SmoothUnion)
}

// (intersection f1 f2 ... :k blend)
func intersectionBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	return combine(st, a, st.bld.Intersection, st.bld.SmoothIntersection)
}

func combine(st *state, a kwArgs, exact func(...fieldeval.Field) fieldeval.Field, smooth func(float64, ...fieldeval.Field) fieldeval.Field) (zygo.Sexp, error) {
	if err := a.atLeast(2); err != nil {
		return nil, err
	}
	fields, err := a.fields(0)
	if err != nil {
		return nil, err
	}
	k, err := a.kwNum("k", 0)
	if err != nil {
		return nil, err
	}
	if k != 0 {
		return fieldResult(smooth(k, fields...))
	}
	return fieldResult(exact(fields...))
}

// (subtraction a b1 b2 ... :k blend)
func subtractionBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.atLeast(2); err != nil {
		return nil, err
	}
	fields, err := a.fields(0)
	if err != nil {
		return nil, err
	}
	k, err := a.kwNum("k", 0)
	if err != nil {
		return nil, err
	}
	if k != 0 {
		return fieldResult(st.bld.SmoothSubtraction(k, fields[0], fields[1:]...))
	}
	return fieldResult(st.bld.Subtraction(fields[0], fields[1:]...))
}

// (complement f)
func complementBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(1); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.Complement(f))
}

// (offset f d)
func offsetBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	return fieldAndNumber(a, st.bld.Offset)
}

// (shell f thickness)
func shellBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	return fieldAndNumber(a, st.bld.Shell)
}

// (ring-wrap f radius)
func ringWrapBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	return fieldAndNumber(a, st.bld.RingWrap)
}

func fieldAndNumber(a kwArgs, op func(fieldeval.Field, float64) fieldeval.Field) (zygo.Sexp, error) {
	if err := a.want(2); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	v, err := a.num(1)
	if err != nil {
		return nil, err
	}
	return fieldResult(op(f, v))
}

// vecOrNums reads either a single vec3 or three numbers starting at positional argument i.
func (a kwArgs) vecOrNums(i int) (md3.Vec, error) {
	switch len(a.positional) - i {
	case 1:
		return a.vec(i)
	case 3:
		v, err := a.nums(i)
		if err != nil {
			return md3.Vec{}, err
		}
		return md3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return md3.Vec{}, errors.New("want a vec3 or three numbers")
}

// (translate f x y z) or (translate f (vec3 x y z))
func translateBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.atLeast(2); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	v, err := a.vecOrNums(1)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.Translate(f, v.X, v.Y, v.Z))
}

// (rotate f radians (vec3 axis))
func rotateBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	angle, err := a.num(1)
	if err != nil {
		return nil, err
	}
	axis, err := a.vec(2)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.Rotate(f, angle, axis))
}

// (scale f s) or (scale f sx sy sz)
func scaleBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.atLeast(2); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	if len(a.positional) == 2 {
		if _, isVec := a.positional[1].(*sexpVec3); !isVec {
			s, err := a.num(1)
			if err != nil {
				return nil, err
			}
			return fieldResult(st.bld.Scale(f, s))
		}
	}
	v, err := a.vecOrNums(1)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.ScaleXYZ(f, v.X, v.Y, v.Z))
}

// (symmetry f :x true :y false :z true)
func symmetryBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(1); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	var mirror [3]bool
	for i, axis := range [3]string{"x", "y", "z"} {
		mirror[i], err = a.kwBool(axis)
		if err != nil {
			return nil, err
		}
	}
	return fieldResult(st.bld.Symmetry(f, mirror[0], mirror[1], mirror[2]))
}

// (wallpaper f "*442" width :height h) or (wallpaper f "*4" 0) for point group mirrors.
func wallpaperBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(3); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	kind, err := toString(a.positional[1])
	if err != nil {
		return nil, err
	}
	width, err := a.num(2)
	if err != nil {
		return nil, err
	}
	height, err := a.kwNum("height", width)
	if err != nil {
		return nil, err
	}
	var g *fabfield.ReflectionGroup
	switch kind {
	case "*442":
		g, err = fabfield.WallpaperGroup(fabfield.WallpaperS442, width, height)
	case "*632":
		g, err = fabfield.WallpaperGroup(fabfield.WallpaperS632, width, height)
	case "*333":
		g, err = fabfield.WallpaperGroup(fabfield.WallpaperS333, width, height)
	case "*2222":
		g, err = fabfield.WallpaperGroup(fabfield.WallpaperS2222, width, height)
	default:
		var n int
		if _, scanErr := fmt.Sscanf(kind, "*%d", &n); scanErr != nil || fmt.Sprintf("*%d", n) != kind {
			return nil, fmt.Errorf("unknown group %q", kind)
		}
		g, err = fabfield.PointGroupMirrors(n)
	}
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.Reflect(f, g))
}

// (periodic f (vec3 a) [(vec3 b) [(vec3 c)]] :origin (vec3 o))
func periodicBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.atLeast(2); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	var basis []md3.Vec
	for i := 1; i < len(a.positional); i++ {
		v, err := a.vec(i)
		if err != nil {
			return nil, err
		}
		basis = append(basis, v)
	}
	var origin md3.Vec
	if s, ok := a.kw["origin"]; ok {
		origin, err = toVec3(s)
		if err != nil {
			return nil, fmt.Errorf(":origin: %w", err)
		}
	}
	return fieldResult(st.bld.Periodic(f, origin, basis...))
}

// (color f r g b)
func colorBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(4); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	c, err := a.nums(1)
	if err != nil {
		return nil, err
	}
	return fieldResult(st.bld.Colored(f, c[0], c[1], c[2]))
}

// (density) and (distance) set the mode of fields created afterwards.
func modeBuiltin(m fieldeval.Mode) builtin {
	return func(st *state, a kwArgs) (zygo.Sexp, error) {
		if err := a.want(0); err != nil {
			return nil, err
		}
		st.bld.SetMode(m)
		return zygo.SexpNull, nil
	}
}

// (scene f)
func sceneBuiltin(st *state, a kwArgs) (zygo.Sexp, error) {
	if err := a.want(1); err != nil {
		return nil, err
	}
	f, err := a.field(0)
	if err != nil {
		return nil, err
	}
	st.scene = f
	return a.positional[0], nil
}
