package molecule

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestAlkaneTopology(t *testing.T) {
	c, err := Alkane(6)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	top, err := NewTopology(c)
	require.NoError(t, err)

	// Hexane: 5 bonds, 4 angles, 3 rotatable torsions
	assert.Len(t, top.Bonds(), 5)
	assert.Len(t, top.Angles(), 4)
	assert.Equal(t, 3, top.NumTorsions())
	assert.Equal(t, [4]int{0, 1, 2, 3}, top.Torsions()[0])

	assert.Equal(t, 5, top.Separation(0, 5))
	assert.Equal(t, 0, top.Separation(2, 2))
	assert.Equal(t, []int{2, 3, 4, 5}, top.Moving(0))
	assert.Equal(t, []int{4, 5}, top.Moving(2))
}

func TestNeighboursFromBonds(t *testing.T) {
	// Bonds listed out of order still give sorted neighbour lists
	c := Config{
		Name:  "butane",
		Atoms: []Atom{{"C"}, {"C"}, {"C"}, {"C"}},
		Bonds: []Bond{
			{Begin: 3, End: 2},
			{Begin: 1, End: 0},
			{Begin: 2, End: 1},
		},
		Positions: make([][3]float64, 4),
	}
	top, err := NewTopology(c)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, top.Neighbours(1))
	assert.Equal(t, []int{1, 3}, top.Neighbours(2))
	assert.Equal(t, 1, top.Degree(3))
	assert.Equal(t, [][4]int{{3, 2, 1, 0}}, top.Torsions())

	c.Torsions = [][4]int{{0, 1, 3, 2}}
	_, err = NewTopology(c)
	assert.Error(t, err)
}

func TestBondTypeValidate(t *testing.T) {
	c, err := Alkane(5)
	require.NoError(t, err)
	c.Bonds = append([]Bond(nil), c.Bonds...)

	c.Bonds[0].Type = Aromatic
	assert.NoError(t, c.Validate())
	c.Bonds[0].Type = 12
	assert.Error(t, c.Validate())
	c.Bonds[0].Type = -1
	assert.Error(t, c.Validate())
	_, err = NewTopology(c)
	assert.Error(t, err)
}

func TestTooSmallAlkane(t *testing.T) {
	_, err := Alkane(3)
	assert.Error(t, err)
}

func TestNoTorsions(t *testing.T) {
	// Isobutane: a central carbon with three terminal neighbours
	c := Config{
		Name:  "isobutane",
		Atoms: []Atom{{"C"}, {"C"}, {"C"}, {"C"}},
		Bonds: []Bond{
			{Begin: 0, End: 1},
			{Begin: 0, End: 2},
			{Begin: 0, End: 3},
		},
		Positions: make([][3]float64, 4),
	}
	_, err := NewTopology(c)
	assert.ErrorIs(t, err, ErrNoTorsions)
}

func TestBranchedAlkane(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 4; n < 12; n++ {
		c, err := BranchedAlkane(n, rng)
		require.NoError(t, err)

		top, err := NewTopology(c)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, top.NumTorsions(), 1)
		for i := 0; i < n; i++ {
			assert.LessOrEqual(t, top.Degree(i), 4)
		}
	}
}

func TestEmbeddedGeometry(t *testing.T) {
	c, err := Alkane(8)
	require.NoError(t, err)
	top, err := NewTopology(c)
	require.NoError(t, err)
	conf, err := NewConformation(top, c.Positions)
	require.NoError(t, err)

	for _, b := range top.Bonds() {
		assert.InDelta(t, CCBondLength, conf.Distance(b.Begin, b.End), 1e-9)
	}
	for _, a := range top.Angles() {
		assert.InDelta(t, CCCAngle, conf.Angle(a[0], a[1], a[2]), 1e-6)
	}
	for _, angle := range conf.TorsionAngles() {
		assert.InDelta(t, 180, math.Abs(angle), 1e-6)
	}
}

func TestSetDihedral(t *testing.T) {
	c, err := Alkane(6)
	require.NoError(t, err)
	top, err := NewTopology(c)
	require.NoError(t, err)
	conf, err := NewConformation(top, c.Positions)
	require.NoError(t, err)

	before := conf.Clone()
	for _, target := range []float64{-180, -120, -60, 0, 60, 120} {
		conf.SetDihedral(1, target)
		got := conf.Dihedral(top.Torsions()[1])
		diff := math.Mod(got-target+540, 360) - 180
		assert.InDelta(t, 0, diff, 1e-6, "target %v got %v", target, got)

		// Rotation is rigid: bond lengths are preserved
		for _, b := range top.Bonds() {
			assert.InDelta(t, CCBondLength, conf.Distance(b.Begin, b.End),
				1e-9)
		}
	}

	// The clone is unaffected and atoms on the fixed side never move
	assert.Equal(t, c.Positions, before.Positions())
	for _, i := range []int{0, 1, 2} {
		want, got := before.Position(i), conf.Position(i)
		assert.InDeltaSlice(t, want[:], got[:], 1e-12)
	}
}

func TestDihedralSign(t *testing.T) {
	p0 := [3]float64{1, 0, 0}
	p1 := [3]float64{0, 0, 0}
	p2 := [3]float64{0, 0, 1}

	assert.InDelta(t, 0, Dihedral(p0, p1, p2, [3]float64{1, 0, 1}), 1e-12)
	assert.InDelta(t, 90, Dihedral(p0, p1, p2, [3]float64{0, 1, 1}), 1e-12)
	assert.InDelta(t, -90, Dihedral(p0, p1, p2, [3]float64{0, -1, 1}), 1e-12)
}

func TestCoordinates(t *testing.T) {
	c, err := Alkane(4)
	require.NoError(t, err)
	top, err := NewTopology(c)
	require.NoError(t, err)
	conf, err := NewConformation(top, c.Positions)
	require.NoError(t, err)

	x := conf.Coordinates()
	require.Len(t, x, 12)
	x[0] = 42
	conf.SetCoordinates(x)
	assert.Equal(t, 42.0, conf.Position(0)[0])
	assert.Panics(t, func() { conf.SetCoordinates(x[:3]) })
}

func TestConfigFile(t *testing.T) {
	c, err := Alkane(5)
	require.NoError(t, err)
	c = c.WithStandardEnergy(-3.5)

	filename := filepath.Join(t.TempDir(), "pentane.json")
	require.NoError(t, c.Save(filename))

	got, err := Spec{File: filename}.Build()
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.Bonds, got.Bonds)
	require.NotNil(t, got.StandardEnergy)
	assert.Equal(t, -3.5, *got.StandardEnergy)
}

func TestSpecValidate(t *testing.T) {
	assert.Error(t, Spec{}.Validate())
	assert.Error(t, Spec{File: "x.json", Alkane: 4}.Validate())
	assert.NoError(t, Spec{Alkane: 4}.Validate())

	a, err := Spec{Alkane: 7, Branched: true, Seed: 3}.Build()
	require.NoError(t, err)
	b, err := Spec{Alkane: 7, Branched: true, Seed: 3}.Build()
	require.NoError(t, err)
	assert.Equal(t, a.Bonds, b.Bonds)
}
