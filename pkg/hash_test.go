package bitwatch

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseAlgorithm(t *testing.T) {
	testCases := []struct {
		name  string
		want  Algorithm
		valid bool
	}{
		{"SHA256", SHA256, true},
		{"sha256", SHA256, true},
		{"SHA-256", SHA256, true},
		{" sha512 ", SHA512, true},
		{"md5", MD5, true},
		{"Sha1", SHA1, true},
		{"sha224", "", false},
		{"xxh3", "", false},
		{"", "", false},
	}

	for _, tc := range testCases {
		got, err := ParseAlgorithm(tc.name)
		if tc.valid {
			if err != nil {
				t.Errorf("ParseAlgorithm(%q) should succeed but got error: %v", tc.name, err)
				continue
			}
			if got != tc.want {
				t.Errorf("ParseAlgorithm(%q) = %s, expected %s", tc.name, got, tc.want)
			}
		} else if !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Errorf("ParseAlgorithm(%q) expected ErrUnsupportedAlgorithm, got %v", tc.name, err)
		}
	}
}

func TestDigestString_KnownVectors(t *testing.T) {
	testCases := []struct {
		alg   Algorithm
		input string
		want  string
	}{
		{MD5, "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{SHA1, "abc", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{SHA512, "abc", "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"},
		{SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	}

	for _, tc := range testCases {
		got, err := DigestString(tc.input, tc.alg)
		if err != nil {
			t.Fatalf("DigestString(%q, %s) error = %v", tc.input, tc.alg, err)
		}
		if got != tc.want {
			t.Errorf("DigestString(%q, %s) = %s, expected %s", tc.input, tc.alg, got, tc.want)
		}
		if len(got) != 2*tc.alg.Size() {
			t.Errorf("Expected %d hex characters for %s, got %d", 2*tc.alg.Size(), tc.alg, len(got))
		}
	}
}

func TestHasher_StreamingMatchesOneShot(t *testing.T) {
	content := strings.Repeat("integrity ", 1000)

	for _, size := range []int{1, 7, 4096, 0} {
		hasher := NewHasher(size)
		for _, alg := range Algorithms {
			got, err := hasher.Digest(context.Background(), strings.NewReader(content), alg)
			if err != nil {
				t.Fatalf("Digest() error = %v", err)
			}
			want := mustDigest(t, content, alg)
			if got != want {
				t.Errorf("Buffer %d %s: expected %s, got %s", size, alg, want, got)
			}
		}
	}
}

func TestHasher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHasher(16).Digest(ctx, strings.NewReader("data"), SHA256)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestHasher_UnsupportedAlgorithm(t *testing.T) {
	_, err := NewHasher(0).Digest(context.Background(), strings.NewReader("data"), Algorithm("CRC32"))
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("Expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestAggregateHash_OrderIndependent(t *testing.T) {
	forward, err := aggregateHash([]string{"a:1", "b:2", "c:3"}, SHA256)
	if err != nil {
		t.Fatalf("aggregateHash() error = %v", err)
	}
	parts := []string{"c:3", "a:1", "b:2"}
	backward, err := aggregateHash(parts, SHA256)
	if err != nil {
		t.Fatalf("aggregateHash() error = %v", err)
	}

	if forward != backward {
		t.Errorf("Expected order independent hash, got %s and %s", forward, backward)
	}
	if want := mustDigest(t, "a:1;b:2;c:3", SHA256); forward != want {
		t.Errorf("Expected %s, got %s", want, forward)
	}
	if parts[0] != "c:3" {
		t.Error("Expected aggregateHash not to reorder its input")
	}
}
