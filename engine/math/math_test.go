package math

import "testing"

const tolerance = 1e-5

func TestQuaternionToMat4Normalizes(t *testing.T) {
	// A non-unit quaternion must produce the same rotation as its normalized form.
	q := Quaternion{0, 2, 0, 2}
	got := q.ToMat4()
	want := q.Normalize().ToMat4()
	if !got.Compare(want, tolerance) {
		t.Errorf("expected %v, got %v", want.Data, got.Data)
	}
}

func TestQuaternionRotatesAboutY(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3Up(), DegToRad(90), true)
	got := NewVec3(1, 0, 0).Transform(q.ToMat4())
	want := NewVec3(0, 0, 1)
	if !got.Compare(want, tolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTransformLocalAppliesScaleThenTranslation(t *testing.T) {
	tr := TransformFromPositionRotationScale(NewVec3(5, 0, 0), NewQuatIdentity(), NewVec3(2, 2, 2))
	if !tr.IsDirty || tr.Generation == 0 {
		t.Fatalf("expected new transform to be dirty")
	}
	got := NewVec3(1, 0, 0).Transform(tr.GetLocal())
	want := NewVec3(7, 0, 0)
	if !got.Compare(want, tolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if tr.IsDirty {
		t.Errorf("expected transform to be clean after GetLocal")
	}
}

func TestTransformWorldIncludesParent(t *testing.T) {
	parent := TransformFromPosition(NewVec3(0, 10, 0))
	child := TransformFromPosition(NewVec3(1, 0, 0))
	child.SetParent(parent)

	child.GetWorld()
	before := child.WorldGeneration()
	parent.Translate(NewVec3(0, 1, 0))
	if child.WorldGeneration() == before {
		t.Errorf("expected the parent change to advance the child's world generation")
	}

	got := NewVec3Zero().Transform(child.GetWorld())
	want := NewVec3(1, 11, 0)
	if !got.Compare(want, tolerance) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWorldGenerationSurvivesEvaluation(t *testing.T) {
	parent := TransformCreate()
	first := TransformCreate()
	second := TransformCreate()
	first.SetParent(parent)
	second.SetParent(parent)
	seenFirst, seenSecond := first.WorldGeneration(), second.WorldGeneration()

	parent.SetPosition(NewVec3(10, 0, 0))
	// Evaluating one child rebuilds the shared parent and clears its IsDirty.
	first.GetWorld()
	if parent.IsDirty {
		t.Fatalf("expected the parent matrix to be rebuilt")
	}
	if first.WorldGeneration() == seenFirst {
		t.Errorf("expected the first child to observe the parent change")
	}
	if second.WorldGeneration() == seenSecond {
		t.Errorf("expected the second child to observe the parent change")
	}
}

func TestMat4MulIdentity(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3)).Mul(NewMat4Scale(NewVec3(4, 5, 6)))
	if got := m.Mul(NewMat4Identity()); !got.Compare(m, tolerance) {
		t.Errorf("expected %v, got %v", m.Data, got.Data)
	}
	if got := NewMat4Identity().Mul(m); !got.Compare(m, tolerance) {
		t.Errorf("expected %v, got %v", m.Data, got.Data)
	}
}

func TestGeometryExtentsAndNormals(t *testing.T) {
	vertices := []Vertex3D{
		{Position: NewVec3(0, 0, 0)},
		{Position: NewVec3(1, 0, 0)},
		{Position: NewVec3(0, 1, 0)},
	}
	GeometryGenerateNormals(vertices, []uint32{0, 1, 2})
	for i, v := range vertices {
		if !v.Normal.Compare(NewVec3(0, 0, 1), tolerance) {
			t.Errorf("vertex %d: expected normal +Z, got %v", i, v.Normal)
		}
	}

	ext := GeometryCalculateExtents(vertices)
	if !ext.Min.Compare(NewVec3Zero(), tolerance) || !ext.Max.Compare(NewVec3(1, 1, 0), tolerance) {
		t.Errorf("unexpected extents %+v", ext)
	}
	if got := GeometryCalculateExtents(nil); got != (Extents3D{}) {
		t.Errorf("expected zero extents, got %+v", got)
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name     string
		v, align uint64
		up, down uint64
	}{
		{"aligned", 128, 64, 128, 128},
		{"round", 130, 64, 192, 128},
		{"zero", 0, 64, 0, 0},
		{"no alignment", 13, 0, 13, 13},
		{"unit alignment", 13, 1, 13, 13},
		{"saturates", ^uint64(0), 64, ^uint64(0) - 63, ^uint64(0) - 63},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AlignUp(tt.v, tt.align); got != tt.up {
				t.Errorf("AlignUp(%d, %d): expected %d, got %d", tt.v, tt.align, tt.up, got)
			}
			if got := AlignDown(tt.v, tt.align); got != tt.down {
				t.Errorf("AlignDown(%d, %d): expected %d, got %d", tt.v, tt.align, tt.down, got)
			}
		})
	}
}

func TestIsPowerOfTwoAndClamp(t *testing.T) {
	for _, v := range []uint32{1, 2, 64, 1 << 31} {
		if !IsPowerOfTwo(v) {
			t.Errorf("expected %d to be a power of two", v)
		}
	}
	for _, v := range []uint32{0, 3, 65} {
		if IsPowerOfTwo(v) {
			t.Errorf("expected %d not to be a power of two", v)
		}
	}
	if got := Clamp(12, 0, 8); got != 8 {
		t.Errorf("expected 8, got %d", got)
	}
	if got := Clamp(float32(-1), 0, 1); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}
