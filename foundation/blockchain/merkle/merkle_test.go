package merkle_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/cadenalabs/cadena/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

// content implements the merkle.Hashable interface over a plain string.
type content struct {
	value string
}

func (c content) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(c.value))
	return h[:], nil
}

func (c content) Equals(other content) bool {
	return c.value == other.value
}

// =============================================================================

func Test_Tree(t *testing.T) {
	t.Log("Given the need to commit to a set of values with a merkle tree.")
	{
		t.Logf("\tTest 0:\tWhen constructing and verifying trees.")
		{
			for _, values := range [][]content{
				{{"alpha"}},
				{{"alpha"}, {"beta"}},
				{{"alpha"}, {"beta"}, {"gamma"}},
				{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}, {"epsilon"}},
			} {
				tree, err := merkle.NewTree(values)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to construct a tree over %d values: %v", failed, len(values), err)
				}

				if err := tree.Verify(); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould verify a tree over %d values: %v", failed, len(values), err)
				}

				got := tree.Values()
				if len(got) != len(values) {
					t.Fatalf("\t%s\tTest 0:\tShould return the original %d values: got %d.", failed, len(values), len(got))
				}
				for i := range values {
					if !got[i].Equals(values[i]) {
						t.Fatalf("\t%s\tTest 0:\tShould preserve value order at position %d.", failed, i)
					}
				}

				if len(tree.RootHex()) < 3 || tree.RootHex()[:2] != "0x" {
					t.Fatalf("\t%s\tTest 0:\tShould produce a 0x prefixed root: got %q.", failed, tree.RootHex())
				}
			}
			t.Logf("\t%s\tTest 0:\tShould construct, verify, and round trip trees of odd and even size.", success)
		}

		t.Logf("\tTest 1:\tWhen proving membership of a value.")
		{
			values := []content{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}, {"epsilon"}}

			tree, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to construct the tree: %v", failed, err)
			}

			for _, value := range values {
				proof, order, err := tree.Proof(value)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to produce a proof for %q: %v", failed, value.value, err)
				}

				// Fold the proof back up to the root by hand.
				hash, err := value.Hash()
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to hash the value: %v", failed, err)
				}
				for i, p := range proof {
					var buf []byte
					if order[i] == 0 {
						buf = append(append(buf, p...), hash...)
					} else {
						buf = append(append(buf, hash...), p...)
					}
					sum := sha256.Sum256(buf)
					hash = sum[:]
				}

				if !bytes.Equal(hash, tree.MerkleRoot) {
					t.Fatalf("\t%s\tTest 1:\tShould fold the proof for %q back to the root.", failed, value.value)
				}

				if err := tree.VerifyData(value); err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould verify membership of %q: %v", failed, value.value, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould prove and verify membership of every value.", success)

			if _, _, err := tree.Proof(content{"zeta"}); err == nil {
				t.Errorf("\t%s\tTest 1:\tShould refuse a proof for an absent value.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould refuse a proof for an absent value.", success)
			}
			if err := tree.VerifyData(content{"zeta"}); err == nil {
				t.Errorf("\t%s\tTest 1:\tShould refuse to verify an absent value.", failed)
			} else {
				t.Logf("\t%s\tTest 1:\tShould refuse to verify an absent value.", success)
			}
		}

		t.Logf("\tTest 2:\tWhen using a custom hash strategy.")
		{
			values := []content{{"alpha"}, {"beta"}, {"gamma"}}

			tree, err := merkle.NewTree(values, merkle.WithHashStrategy[content](md5.New))
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to construct the tree: %v", failed, err)
			}

			if err := tree.Verify(); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould verify the tree: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould verify a tree built with md5 interior hashing.", success)

			sha, err := merkle.NewTree(values)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to construct the sha256 tree: %v", failed, err)
			}
			if bytes.Equal(tree.MerkleRoot, sha.MerkleRoot) {
				t.Errorf("\t%s\tTest 2:\tShould produce a different root than sha256.", failed)
			} else {
				t.Logf("\t%s\tTest 2:\tShould produce a different root than sha256.", success)
			}
		}

		t.Logf("\tTest 3:\tWhen the value set is empty.")
		{
			if _, err := merkle.NewTree([]content{}); err == nil {
				t.Errorf("\t%s\tTest 3:\tShould refuse to build a tree with no content.", failed)
			} else {
				t.Logf("\t%s\tTest 3:\tShould refuse to build a tree with no content.", success)
			}
		}
	}
}
