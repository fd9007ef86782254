package batch

import (
	"unsafe"

	"github.com/spaghettifunk/anima-instancing/engine/math"
)

/**
 * @brief The per-instance data uploaded to the GPU every frame. The layout
 * matches a std430 struct { mat4 model; uint id; } padded to 16 bytes, and is
 * bound as a per-instance vertex buffer.
 */
type InstanceGpuRecord struct {
	/** @brief The world matrix of the instance. */
	Model [16]float32
	/** @brief The render instance identifier. */
	InstanceID uint32
	_          [3]uint32
}

/** @brief The size in bytes of a single InstanceGpuRecord. */
const InstanceGpuRecordSize = uint64(unsafe.Sizeof(InstanceGpuRecord{}))

func NewInstanceGpuRecord(model math.Mat4, instanceID uint32) InstanceGpuRecord {
	return InstanceGpuRecord{
		Model:      model.Data,
		InstanceID: instanceID,
	}
}

// RecordBytes returns the raw bytes backing records without copying.
func RecordBytes(records []InstanceGpuRecord) []byte {
	if len(records) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), uint64(len(records))*InstanceGpuRecordSize)
}

// RecordsFromBytes copies data into a new record slice. Trailing bytes that do
// not form a whole record are ignored.
func RecordsFromBytes(data []byte) []InstanceGpuRecord {
	records := make([]InstanceGpuRecord, uint64(len(data))/InstanceGpuRecordSize)
	copy(RecordBytes(records), data)
	return records
}
