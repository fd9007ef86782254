package metadata

import "github.com/google/uuid"

/**
 * @brief An immutable piece of GPU geometry loaded from a single source
 * file. Meshes are shared between render instances and destroyed when
 * the last strong reference to them is released.
 */
type Mesh struct {
	ID uuid.UUID
	/** @brief The path the mesh was loaded from. Unique per live mesh. */
	Path     string
	Geometry *Geometry
}

func (m *Mesh) IndexCount() uint32 {
	if m == nil || m.Geometry == nil {
		return 0
	}
	return m.Geometry.IndexCount
}
