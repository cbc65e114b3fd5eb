// Package txgroup validates group-commit integrity on transaction
// batches submitted for signing, and partitions batches for display.
//
// A group commitment binds several transactions together: each member
// declares the same group identifier, and that identifier must equal
// the canonical hash over the ordered member ids (computed with the
// group field cleared). Validation is all-or-nothing: any partial or
// inconsistent group fails the whole batch.
package txgroup

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Aegis-Wallet/aegis/pkg/contracts"
)

// groupDomain separates group-commit preimages from every other use
// of the hash function.
const groupDomain = "TG"

// GroupID computes the canonical group-commit identifier over the
// ordered transaction ids. Transaction ids are canonical identifiers
// computed with the group field cleared, so the commitment covers the
// group-free form of each member.
func GroupID(txns []contracts.Transaction) (string, error) {
	ids := make([]string, len(txns))
	for i, tx := range txns {
		ids[i] = tx.ID
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode group preimage: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize group preimage: %w", err)
	}
	sum := sha512.Sum512_256(append([]byte(groupDomain), canonical...))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Validate checks that the ordered batch forms well-formed atomic
// groups and returns the partition. Transactions without a group
// identifier are singleton groups. Transactions sharing a group
// identifier must be mutually contiguous and their declared id must
// equal the computed commitment; any violation invalidates the whole
// batch with an InvalidGroupId protocol error.
func Validate(txns []contracts.Transaction) ([][]contracts.Transaction, error) {
	var groups [][]contracts.Transaction
	seen := map[string]bool{}

	for i := 0; i < len(txns); {
		tx := txns[i]
		if tx.Group == "" {
			groups = append(groups, []contracts.Transaction{tx})
			i++
			continue
		}
		if seen[tx.Group] {
			return nil, contracts.ErrInvalidGroupID(
				fmt.Sprintf("group %s is not contiguous in the batch", tx.Group))
		}
		seen[tx.Group] = true

		start := i
		for i < len(txns) && txns[i].Group == tx.Group {
			i++
		}
		member := txns[start:i]

		computed, err := GroupID(member)
		if err != nil {
			return nil, contracts.ErrInvalidGroupID(err.Error())
		}
		if computed != tx.Group {
			return nil, contracts.ErrInvalidGroupID(
				fmt.Sprintf("declared group %s does not match the computed commitment", tx.Group))
		}
		groups = append(groups, member)
	}

	// A non-contiguous member past the first run is caught by the seen
	// check above; a member whose peers were never submitted is caught
	// by the hash mismatch, since the commitment covers the full set.
	return groups, nil
}

// Partition groups the batch for display only: contiguous runs of the
// same group identifier become one group, singletons stand alone. No
// completeness or hash check is performed, since read-only UI rendering
// must not reject what the authorization path would.
func Partition(txns []contracts.Transaction) [][]contracts.Transaction {
	var groups [][]contracts.Transaction
	for i := 0; i < len(txns); {
		tx := txns[i]
		if tx.Group == "" {
			groups = append(groups, []contracts.Transaction{tx})
			i++
			continue
		}
		start := i
		for i < len(txns) && txns[i].Group == tx.Group {
			i++
		}
		groups = append(groups, txns[start:i])
	}
	return groups
}

// Seal assigns the computed group commitment to every transaction in
// txns and returns the sealed copy. Test helpers and transaction
// builders use it to produce valid groups.
func Seal(txns []contracts.Transaction) ([]contracts.Transaction, error) {
	gid, err := GroupID(txns)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.Transaction, len(txns))
	copy(out, txns)
	for i := range out {
		out[i].Group = gid
	}
	return out, nil
}
