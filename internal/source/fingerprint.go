package source

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Fingerprint is the recorded state of a source identity at discovery time.
// Fingerprints are computed fresh every build and never mutated, only replaced.
type Fingerprint struct {
	Identity    Identity  `json:"identity"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	MTime       time.Time `json:"mtime"`
}

// Snapshot maps every identity discoverable "now" to its fingerprint.
type Snapshot map[Identity]Fingerprint

// Add inserts or replaces a fingerprint.
func (s Snapshot) Add(fp Fingerprint) { s[fp.Identity] = fp }

// Clone returns a shallow copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, fp := range s {
		out[id] = fp
	}
	return out
}

// Identities returns the snapshot's identities sorted by their string form.
func (s Snapshot) Identities() []Identity {
	out := make([]Identity, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// HashBytes returns the hex-encoded sha256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FingerprintBytes builds a fingerprint for content already held in memory.
func FingerprintBytes(id Identity, data []byte, mtime time.Time) Fingerprint {
	return Fingerprint{
		Identity:    id,
		ContentHash: HashBytes(data),
		Size:        int64(len(data)),
		MTime:       mtime,
	}
}

// FingerprintFile reads and fingerprints a file on disk.
func FingerprintFile(id Identity, path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the configured content roots
	if err != nil {
		return Fingerprint{}, fmt.Errorf("read %s: %w", path, err)
	}
	return FingerprintBytes(id, data, info.ModTime()), nil
}

// Unreadable builds a fingerprint for an identity whose content could not be
// read. The hash incorporates the current time so the identity always
// classifies as changed: detection failures must fail toward rebuild, never
// toward staleness.
func Unreadable(id Identity) Fingerprint {
	now := time.Now()
	return Fingerprint{
		Identity:    id,
		ContentHash: "unreadable:" + HashBytes([]byte(now.Format(time.RFC3339Nano))),
		MTime:       now,
	}
}

// HashValue hashes an arbitrary serializable value (config trees, cascade
// maps) by marshaling it to JSON and hashing the bytes. JSON marshaling sorts
// map keys, so the result is deterministic for map-shaped values.
func HashValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal for hashing: %w", err)
	}
	return HashBytes(data), nil
}

// HashStrings hashes a list of strings order-insensitively by sorting a copy
// first. Used for term membership fingerprints.
func HashStrings(vals []string) string {
	sorted := make([]string, len(vals))
	copy(sorted, vals)
	sort.Strings(sorted)
	h := sha256.New()
	for _, v := range sorted {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
