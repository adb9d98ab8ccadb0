// Package partition implements deterministic title-to-machine assignment for
// sharded crawl campaigns.
package partition

import (
	"crypto/md5" //nolint:gosec // not used for security, only for stable partitioning
	"fmt"
	"math/big"
)

// Version identifies the assignment function. All machines in a campaign must
// run the same version, or their shards will overlap.
const Version = 1

// Assigner maps article titles to machine indices. Assignment is a pure
// function of the title's UTF-8 bytes and the machine count: the title bytes
// are digested with a fixed 128-bit hash, the digest is read as an unsigned
// integer, and the result is reduced modulo the machine count. A process
// restart, a different platform, or a fresh Assigner value never changes the
// answer. Go's runtime map hash is randomized per process and must never be
// substituted here.
type Assigner struct{}

// New returns a title-to-machine Assigner.
func New() *Assigner {
	return &Assigner{}
}

// Assign returns the index of the machine that owns title, in [0, totalMachines).
func (a *Assigner) Assign(title string, totalMachines int) (int, error) {
	if totalMachines <= 0 {
		return 0, fmt.Errorf("total machines must be > 0, got %d", totalMachines)
	}
	sum := md5.Sum([]byte(title)) //nolint:gosec
	n := new(big.Int).SetBytes(sum[:])
	idx := new(big.Int).Mod(n, big.NewInt(int64(totalMachines)))
	return int(idx.Int64()), nil
}

// Owns reports whether machineID is the owner of title in a campaign of
// totalMachines machines.
func (a *Assigner) Owns(title string, machineID, totalMachines int) (bool, error) {
	idx, err := a.Assign(title, totalMachines)
	if err != nil {
		return false, err
	}
	return idx == machineID, nil
}
