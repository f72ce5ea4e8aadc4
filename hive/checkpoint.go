package hive

import (
	"encoding/json"
	"sort"
)

const (
	checkpointFormatHCP2 = "HCP2"
	checkpointFormatHCP1 = "HCP1"
)

// FrontierEntry is one persisted frontier task.
type FrontierEntry struct {
	Provenance Provenance
	NodeID NodeID
	LocalFingerprint [32]byte
	LocalDataByChannel map[ChannelID][]byte
}

// Interruption is the persisted pending interruption, if any.
type Interruption struct {
	ID InterruptID
	Payload any
}

// Checkpoint is the persisted, versioned snapshot of one thread's state at a
// step boundary. Encoding is JSON, keeping store backends storage-agnostic.
type Checkpoint struct {
	ID CheckpointID
	ThreadID ThreadID
	RunID RunID
	StepIndex uint32
	SchemaVersion string
	GraphVersion string

	FormatVersion string // "HCP2", or "HCP1" when decoded from a legacy record

	ChannelVersions map[ChannelID]uint64 // only entries > 0
	VersionsSeenByNode map[NodeID]map[ChannelID]uint64
	UpdatedChannelsLastCommit []ChannelID

	GlobalDataByChannelID map[ChannelID][]byte // checkpointed globals only

	Frontier []FrontierEntry

	JoinBarrierSeenByJoinID map[string][]NodeID // parents sorted lexicographically

	Interruption *Interruption
}

// jsonCheckpoint is the wire shape; payload bytes go through base64 via the
// standard json []byte encoding.
type jsonCheckpoint struct {
	ID CheckpointID `json:"id"`
	ThreadID ThreadID `json:"threadID"`
	RunID string `json:"runID"`
	StepIndex uint32 `json:"stepIndex"`
	SchemaVersion string `json:"schemaVersion"`
	GraphVersion string `json:"graphVersion"`
	FormatVersion string `json:"checkpointFormatVersion"`
	ChannelVersions map[ChannelID]uint64 `json:"channelVersions,omitempty"`
	VersionsSeenByNode map[NodeID]map[ChannelID]uint64 `json:"versionsSeenByNode,omitempty"`
	UpdatedChannelsLastCommit []ChannelID `json:"updatedChannelsLastCommit,omitempty"`
	GlobalDataByChannelID map[ChannelID][]byte `json:"globalDataByChannelID,omitempty"`
	Frontier []jsonFrontierEntry `json:"frontier,omitempty"`
	JoinBarrierSeenByJoinID map[string][]NodeID `json:"joinBarrierSeenByJoinID,omitempty"`
	Interruption *jsonInterruption `json:"interruption,omitempty"`
}

type jsonFrontierEntry struct {
	Provenance Provenance `json:"provenance"`
	NodeID NodeID `json:"nodeID"`
	LocalFingerprint []byte `json:"localFingerprint"`
	LocalDataByChannel map[ChannelID][]byte `json:"localDataByChannelID,omitempty"`
}

type jsonInterruption struct {
	ID InterruptID `json:"id"`
	Payload []byte `json:"payload,omitempty"`
}

// EncodeCheckpoint serializes cp as an HCP2 record.
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	wire := jsonCheckpoint{
 ID: cp.ID,
 ThreadID: cp.ThreadID,
 RunID: cp.RunID.String(),
 StepIndex: cp.StepIndex,
 SchemaVersion: cp.SchemaVersion,
 GraphVersion: cp.GraphVersion,
 FormatVersion: checkpointFormatHCP2,
 ChannelVersions: cp.ChannelVersions,
 VersionsSeenByNode: cp.VersionsSeenByNode,
 UpdatedChannelsLastCommit: cp.UpdatedChannelsLastCommit,
 GlobalDataByChannelID: cp.GlobalDataByChannelID,
 JoinBarrierSeenByJoinID: cp.JoinBarrierSeenByJoinID,
	}
	for _, f := range cp.Frontier {
 wire.Frontier = append(wire.Frontier, jsonFrontierEntry{
 Provenance: f.Provenance,
 NodeID: f.NodeID,
 LocalFingerprint: f.LocalFingerprint[:],
 LocalDataByChannel: f.LocalDataByChannel,
 })
	}
	if cp.Interruption != nil {
 var payload []byte
 if b, ok := cp.Interruption.Payload.([]byte); ok {
 payload = b
 } else if cp.Interruption.Payload != nil {
 encoded, err := json.Marshal(cp.Interruption.Payload)
 if err != nil {
 return nil, &Error{Kind: KindCheckpointEncodeFailed, Message: err.Error()}
 }
 payload = encoded
 }
 wire.Interruption = &jsonInterruption{ID: cp.Interruption.ID, Payload: payload}
	}
	data, err := json.Marshal(wire)
	if err != nil {
 return nil, &Error{Kind: KindCheckpointEncodeFailed, Message: err.Error()}
	}
	return data, nil
}

// DecodeCheckpoint parses a stored record, accepting both HCP2 and the
// legacy HCP1 shape. Missing HCP1 fields default to empty.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var wire jsonCheckpoint
	if err := json.Unmarshal(data, &wire); err != nil {
 return Checkpoint{}, &Error{Kind: KindCheckpointDecodeFailed, Message: err.Error()}
	}

	var runID RunID
	if wire.RunID != "" {
 decoded, err := decodeHex16(wire.RunID)
 if err != nil {
 return Checkpoint{}, errChannel(KindCheckpointDecodeFailed, "", "malformed runID")
 }
 runID = decoded
	}

	formatVersion := wire.FormatVersion
	if formatVersion == "" {
 formatVersion = checkpointFormatHCP1
	}

	cp := Checkpoint{
 ID: wire.ID,
 ThreadID: wire.ThreadID,
 RunID: runID,
 StepIndex: wire.StepIndex,
 SchemaVersion: wire.SchemaVersion,
 GraphVersion: wire.GraphVersion,
 FormatVersion: formatVersion,
 ChannelVersions: wire.ChannelVersions,
 VersionsSeenByNode: wire.VersionsSeenByNode,
 UpdatedChannelsLastCommit: wire.UpdatedChannelsLastCommit,
 GlobalDataByChannelID: wire.GlobalDataByChannelID,
 JoinBarrierSeenByJoinID: wire.JoinBarrierSeenByJoinID,
	}
	if cp.ChannelVersions == nil {
 cp.ChannelVersions = map[ChannelID]uint64{}
	}
	if cp.VersionsSeenByNode == nil {
 cp.VersionsSeenByNode = map[NodeID]map[ChannelID]uint64{}
	}
	if cp.GlobalDataByChannelID == nil {
 cp.GlobalDataByChannelID = map[ChannelID][]byte{}
	}
	if cp.JoinBarrierSeenByJoinID == nil {
 cp.JoinBarrierSeenByJoinID = map[string][]NodeID{}
	}

	for _, f := range wire.Frontier {
 if len(f.LocalFingerprint) != 32 {
 return Checkpoint{}, newErr(KindInvalidTaskLocalFingerprintLength, "stored fingerprint is not 32 bytes")
 }
 var fp [32]byte
 copy(fp[:], f.LocalFingerprint)
 cp.Frontier = append(cp.Frontier, FrontierEntry{
 Provenance: f.Provenance,
 NodeID: f.NodeID,
 LocalFingerprint: fp,
 LocalDataByChannel: f.LocalDataByChannel,
 })
	}

	if wire.Interruption != nil {
 cp.Interruption = &Interruption{ID: wire.Interruption.ID, Payload: wire.Interruption.Payload}
	}

	for joinID, parents := range cp.JoinBarrierSeenByJoinID {
 sorted := append([]NodeID{}, parents...)
 sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
 for i := range sorted {
 if sorted[i] != parents[i] {
 return Checkpoint{}, &Error{Kind: KindCheckpointCorrupt, JoinID: joinID, Field: "joinBarrierSeenByJoinID", Message: "parents not sorted"}
 }
 }
	}

	return cp, nil
}

func decodeHex16(s string) (RunID, error) {
	var out RunID
	if len(s) != 32 {
 return out, errChannel(KindCheckpointDecodeFailed, "", "runID must be 32 hex chars")
	}
	for i := 0; i < 16; i++ {
 hi, ok1 := hexNibble(s[2*i])
 lo, ok2 := hexNibble(s[2*i+1])
 if !ok1 || !ok2 {
 return out, errChannel(KindCheckpointDecodeFailed, "", "runID is not valid hex")
 }
 out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
 return c - '0', true
	case c >= 'a' && c <= 'f':
 return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
 return c - 'A' + 10, true
	default:
 return 0, false
	}
}
