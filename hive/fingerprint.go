package hive

import (
	"crypto/sha256"
	"encoding/binary"
)

// TaskLocalFingerprint computes the 32-byte digest of a task-local overlay:
// SHA-256 over one record per task-local channel spec in registry-sorted
// order, each record `channelID || 0x00 || codec.encode(value or initial)`.
// This is normative: tests reproduce the exact bytes.
func TaskLocalFingerprint(r *Registry, overlay *Overlay) ([32]byte, error) {
	h := sha256.New()
	for _, id := range r.TaskLocalIDs() {
		spec, _ := r.Lookup(id)
		var v any
		if overlay != nil && overlay.Has(id) {
			v = overlay.Get(id)
		} else {
			v = spec.Initial()
		}
		encoded, err := spec.Codec.Encode(v)
		if err != nil {
			return [32]byte{}, errChannel(KindTaskLocalFingerprintEncodeFailed, string(id), err.Error())
		}
		h.Write([]byte(id))
		h.Write([]byte{0x00})
		h.Write(encoded)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// ComputeTaskID derives the deterministic task identifier :
// SHA-256 hex of runID(16) || stepIndex_u32_be || 0x00 || nodeID_utf8 || 0x00
// || ordinal_u32_be || fingerprint(32).
func ComputeTaskID(runID RunID, stepIndex uint32, nodeID NodeID, ordinal uint32, fingerprint [32]byte) TaskID {
	var stepBuf, ordBuf [4]byte
	binary.BigEndian.PutUint32(stepBuf[:], stepIndex)
	binary.BigEndian.PutUint32(ordBuf[:], ordinal)
	parts := [][]byte{
 runID[:],
 stepBuf[:],
 {0x00},
 []byte(nodeID),
 {0x00},
 ordBuf[:],
 fingerprint[:],
	}
	return TaskID(hexDigest(sha256Of(parts...)))
}

// ComputeCheckpointID derives the deterministic checkpoint identifier
// : SHA-256 hex of "HCP1" || runID(16) || stepIndex_u32_be.
func ComputeCheckpointID(runID RunID, stepIndex uint32) CheckpointID {
	var stepBuf [4]byte
	binary.BigEndian.PutUint32(stepBuf[:], stepIndex)
	parts := [][]byte{
 []byte("HCP1"),
 runID[:],
 stepBuf[:],
	}
	return CheckpointID(hexDigest(sha256Of(parts...)))
}

// ComputeInterruptID derives the deterministic interrupt identifier :
// SHA-256 hex of "HINT1" || winningTaskID_utf8.
func ComputeInterruptID(winningTaskID TaskID) InterruptID {
	parts := [][]byte{
 []byte("HINT1"),
 []byte(winningTaskID),
	}
	return InterruptID(hexDigest(sha256Of(parts...)))
}
