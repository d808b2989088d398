package domain

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mr-tron/base58"
)

const (
	nodePrefix = "n:"
	linkPrefix = "l:"
)

// CanonicalBytes serialises the identity-bearing fields of an atom as a
// length-prefixed tuple. Outgoing sets of unordered subtypes must already
// be sorted (TypeRegistry.Validate does that).
func CanonicalBytes(a *Atom) []byte {
	buf := make([]byte, 0, 64)
	buf = appendField(buf, string(a.Kind))
	buf = appendField(buf, a.Subtype)
	if a.Kind == KindNode {
		return appendField(buf, a.Name)
	}
	buf = binary.AppendUvarint(buf, uint64(len(a.Outgoing)))
	for _, id := range a.Outgoing {
		buf = appendField(buf, string(id))
	}
	return buf
}

func appendField(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// ComputeID derives the content address of an atom. Equal structure always
// yields an equal id.
func ComputeID(a *Atom) ID {
	sum := sha256.Sum256(CanonicalBytes(a))
	prefix := linkPrefix
	if a.Kind == KindNode {
		prefix = nodePrefix
	}
	return ID(prefix + base58.Encode(sum[:16]))
}

// VarID is the id a VariableNode with the given name gets. Bindings are keyed by it.
func VarID(name string) ID {
	return ComputeID(&Atom{Kind: KindNode, Subtype: VariableNode, Name: name})
}

// NodeID is a shortcut for the id of a node.
func NodeID(subtype, name string) ID {
	return ComputeID(&Atom{Kind: KindNode, Subtype: subtype, Name: name})
}
