package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := hashPassword(strings.NewReader("s3cret-pass\n"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
}

func TestHashPasswordWithoutTrailingNewline(t *testing.T) {
	hash, err := hashPassword(strings.NewReader("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := hashPassword(strings.NewReader("\n"), bcrypt.MinCost)
	assert.ErrorContains(t, err, "empty")
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("from-stdin\n"))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"hash-password", "--cost", "4"})
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))
}

func TestSweepRefreshRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	rootCmd.SetArgs([]string{"sweep-refresh"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	assert.ErrorIs(t, rootCmd.Execute(), errNoDatabase)
}
