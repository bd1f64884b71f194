package mevshare

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"
)

const (
	MaxBodySize     = 50
	MaxNestingLevel = 1
)

var (
	ErrInvalidInclusion         = errors.New("invalid inclusion")
	ErrInvalidBundleBodySize    = errors.New("invalid bundle body size")
	ErrInvalidBundleBody        = errors.New("invalid bundle body")
	ErrUnsupportedBundleVersion = errors.New("unsupported bundle version")
	ErrBundleTooDeep            = errors.New("bundle too deep")
	ErrInvalidBundleConstraints = errors.New("invalid bundle constraints")
	ErrInvalidBundlePrivacy     = errors.New("invalid bundle privacy")
)

// inclusionRange returns the effective [block, maxBlock] of a bundle, maxBlock defaults to block.
func inclusionRange(inclusion MevBundleInclusion) (uint64, uint64) {
	minBlock := uint64(inclusion.BlockNumber)
	maxBlock := uint64(inclusion.MaxBlock)
	if maxBlock == 0 {
		maxBlock = minBlock
	}
	return minBlock, maxBlock
}

// overlapInclusion returns ErrInvalidInclusion if inner can never be included together with its parent.
func overlapInclusion(parent, inner MevBundleInclusion) error {
	parentMin, parentMax := inclusionRange(parent)
	innerMin, innerMax := inclusionRange(inner)
	if parentMax < innerMin || innerMax < parentMin {
		return ErrInvalidInclusion
	}
	return nil
}

func bodyEntryKinds(el MevBundleBody) int {
	kinds := 0
	if el.Hash != nil {
		kinds++
	}
	if el.Tx != nil {
		kinds++
	}
	if el.Bundle != nil {
		kinds++
	}
	return kinds
}

func validateBundleInner(level int, bundle *SendMevBundleArgs) (hash common.Hash, txs int, unmatched bool, err error) { //nolint:gocognit,gocyclo
	if level > MaxNestingLevel {
		return hash, txs, unmatched, ErrBundleTooDeep
	}
	if bundle.Version != "beta-1" && bundle.Version != "v0.1" {
		return hash, txs, unmatched, ErrUnsupportedBundleVersion
	}

	// validate inclusion
	minBlock, maxBlock := inclusionRange(bundle.Inclusion)
	if minBlock == 0 || maxBlock < minBlock {
		return hash, txs, unmatched, ErrInvalidInclusion
	}

	// validate body
	if len(bundle.Body) == 0 {
		return hash, txs, unmatched, ErrInvalidBundleBodySize
	}

	bodyHashes := make([]common.Hash, 0, len(bundle.Body))
	for i, el := range bundle.Body {
		if bodyEntryKinds(el) != 1 {
			return hash, txs, unmatched, ErrInvalidBundleBody
		}
		switch {
		case el.Hash != nil:
			// up to one unmatched element and only at the beginning of the body
			if i != 0 {
				return hash, txs, unmatched, ErrInvalidBundleBody
			}
			unmatched = true
			bodyHashes = append(bodyHashes, *el.Hash)
			txs++
		case el.Tx != nil:
			var tx types.Transaction
			if err := tx.UnmarshalBinary(*el.Tx); err != nil {
				return hash, txs, unmatched, errors.Join(ErrInvalidBundleBody, err)
			}
			bodyHashes = append(bodyHashes, tx.Hash())
			txs++
		case el.Bundle != nil:
			if err := overlapInclusion(bundle.Inclusion, el.Bundle.Inclusion); err != nil {
				return hash, txs, unmatched, err
			}
			h, t, u, err := validateBundleInner(level+1, el.Bundle)
			if err != nil {
				return hash, txs, unmatched, err
			}
			// unmatched bundles are only allowed at the top level
			if u {
				return hash, txs, unmatched, ErrInvalidBundleBody
			}
			bodyHashes = append(bodyHashes, h)
			txs += t
		}
	}
	if unmatched && len(bundle.Body) == 1 {
		// a backrun needs something to run after the target
		return hash, txs, unmatched, ErrInvalidBundleBody
	}
	if txs > MaxBodySize {
		return hash, txs, unmatched, ErrInvalidBundleBodySize
	}

	if len(bodyHashes) == 1 {
		// special case of bundle with a single tx
		hash = bodyHashes[0]
	} else {
		hasher := sha3.NewLegacyKeccak256()
		for _, h := range bodyHashes {
			hasher.Write(h[:])
		}
		hash = common.BytesToHash(hasher.Sum(nil))
	}

	if err := validateValidity(bundle, unmatched); err != nil {
		return hash, txs, unmatched, err
	}

	// hints can't be shared about a transaction we don't own
	if unmatched && bundle.Privacy != nil && bundle.Privacy.Hints != HintNone {
		return hash, txs, unmatched, ErrInvalidBundlePrivacy
	}

	return hash, txs, unmatched, nil
}

func validateValidity(bundle *SendMevBundleArgs, unmatched bool) error {
	if bundle.Validity == nil {
		return nil
	}
	if unmatched && len(bundle.Validity.Refund) > 0 {
		// refunds should be empty for unmatched bundles
		return ErrInvalidBundleConstraints
	}

	totalRefundConfigPercent := 0
	for _, c := range bundle.Validity.RefundConfig {
		if c.Percent < 0 || c.Percent > 100 {
			return ErrInvalidBundleConstraints
		}
		totalRefundConfigPercent += c.Percent
	}
	if totalRefundConfigPercent > 100 {
		return ErrInvalidBundleConstraints
	}

	usedBodyPos := make(map[int]struct{})
	totalPercent := 0
	for _, c := range bundle.Validity.Refund {
		if c.BodyIdx >= len(bundle.Body) || c.BodyIdx < 0 {
			return ErrInvalidBundleConstraints
		}
		if _, ok := usedBodyPos[c.BodyIdx]; ok {
			return ErrInvalidBundleConstraints
		}
		usedBodyPos[c.BodyIdx] = struct{}{}

		if c.Percent < 0 || c.Percent > 100 {
			return ErrInvalidBundleConstraints
		}
		totalPercent += c.Percent
	}
	if totalPercent > 100 {
		return ErrInvalidBundleConstraints
	}
	return nil
}

// ValidateBundleParams checks the structure of a bundle before it is sent and returns
// the bundle hash the relay is expected to compute. Economics are not checked.
// unmatched is true when the bundle backruns a transaction referenced by hash.
func ValidateBundleParams(bundle *BundleParams) (hash common.Hash, unmatched bool, err error) {
	hash, _, unmatched, err = validateBundleInner(0, bundle)
	return hash, unmatched, err
}
