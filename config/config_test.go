package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tuneinsight/healthvault/engine"
	"github.com/tuneinsight/healthvault/schemes/lattice"
	"github.com/tuneinsight/healthvault/schemes/mask"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
backend: lattice
lattice:
  log_n: 13
  log_q: [54, 54]
mask:
  mask: 0xCAFEBABE
vault:
  attestation_key: 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
log:
  level: debug
`))
	require.NoError(t, err)

	m := uint32(0xCAFEBABE)
	want := &Config{
		Backend: "lattice",
		Mask:    MaskConfig{Mask: &m},
		Lattice: LatticeConfig{LogN: 13, LogQ: []int{54, 54}},
		Vault:   VaultConfig{AttestationKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"},
		Log:     LogConfig{Level: "debug"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	literal := cfg.Lattice.ParametersLiteral()
	require.Equal(t, 13, literal.LogN)
	require.Equal(t, []int{54, 54}, literal.LogQ)
	require.Equal(t, lattice.DefaultParametersLiteral.LogP, literal.LogP)
	require.Equal(t, lattice.DefaultParametersLiteral.PlaintextModulus, literal.PlaintextModulus)

	key, err := cfg.Vault.Key()
	require.NoError(t, err)
	require.Len(t, key, 32)
}

func TestDefault(t *testing.T) {
	cfg, err := Parse([]byte(""))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("default mismatch (-want +got):\n%s", diff)
	}

	key, err := cfg.Vault.Key()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"UnknownBackend": "backend: paillier",
		"LogNTooLarge":   "backend: lattice\nlattice:\n  log_n: 20",
		"LogQTooSmall":   "backend: lattice\nlattice:\n  log_q: [8]",
		"SeedTooLong":    "mask:\n  seed: " + strings.Repeat("s", 65),
		"ShortKey":       "vault:\n  attestation_key: abcd",
		"BadLevel":       "log:\n  level: verbose",
		"NotYAML":        "backend: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()

	m := uint32(0x01020304)
	for name, cfg := range map[string]*Config{
		"DefaultMask": Default(),
		"Mask":        {Backend: "mask", Mask: MaskConfig{Mask: &m}},
		"Seed":        {Backend: "mask", Mask: MaskConfig{Seed: "deployment"}},
		"Lattice":     {Backend: "lattice"},
	} {
		t.Run(name, func(t *testing.T) {
			b, err := cfg.NewBackend()
			require.NoError(t, err)
			require.Equal(t, cfg.Backend, b.Name())

			e := engine.New(b)
			require.NoError(t, e.Initialize(ctx))

			v, err := e.Encrypt(ctx, 72)
			require.NoError(t, err)
			x, err := e.Decrypt(ctx, v)
			require.NoError(t, err)
			require.Equal(t, uint32(72), x)
		})
	}

	_, err := (&Config{Backend: "other"}).NewBackend()
	require.Error(t, err)
}

func TestDefaultMaskIsLegacy(t *testing.T) {
	b, err := Default().NewBackend()
	require.NoError(t, err)

	e := engine.New(b)
	require.NoError(t, e.Initialize(context.Background()))

	x, err := e.Decrypt(context.Background(), "p76t3gAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=")
	require.NoError(t, err)
	require.Equal(t, uint32(72), x)
	require.Equal(t, mask.Name, e.Backend())
}

func TestLoadSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthvault.yaml")

	cfg := Default()
	cfg.Mask.Seed = "persisted"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
