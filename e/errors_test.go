package e

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapNilCreatesExtendedError(t *testing.T) {
	err := N("ZZ0101", "something broke")

	ee := AsExtendedError(err)
	require.NotNil(t, ee)
	assert.Equal(t, "ZZ0101: something broke", ee.Message)
	assert.True(t, ContainsError(err, "something broke"))
	assert.True(t, Contains("ZZ0101", err))
}

func TestWrapKeepsOriginal(t *testing.T) {
	orig := errors.New("boom")
	err := W(orig, "ZZ0102", "debug")

	assert.True(t, errors.Is(err, orig))
	assert.True(t, AsExtendedError(err).IsError(orig))
	assert.True(t, ContainsError(err, "boom"))
	assert.Equal(t, "ZZ0102: "+MsgUnknownInternalServerError, AsExtendedError(err).Message)
}

func TestWrapTwiceAddsCode(t *testing.T) {
	err := W(W(errors.New("boom"), "ZZ0103"), "ZZ0104")

	assert.True(t, Contains("ZZ0103", err))
	assert.True(t, Contains("ZZ0104", err))
}

func TestWWMSetsMessage(t *testing.T) {
	err := WWM(fmt.Errorf("inner"), "ZZ0105", MsgConfigInvalid)

	assert.Equal(t, "ZZ0105: "+MsgConfigInvalid, AsExtendedError(err).Message)
}

func TestIsPQError(t *testing.T) {
	pqerr := &pq.Error{Code: PQErr42P01UndefinedTable}

	assert.True(t, IsPQError(pqerr, PQErr42P01UndefinedTable))
	assert.True(t, IsPQError(W(pqerr, "ZZ0106"), PQErr42P01UndefinedTable))
	assert.False(t, IsPQError(W(pqerr, "ZZ0107"), PQErr55P03LockNotAvailable))
	assert.True(t, IsAnyPQError(W(pqerr, "ZZ0108")))
	assert.False(t, IsAnyPQError(errors.New("nope")))
	assert.False(t, IsPQError(errors.New("nope"), ""))
}

func TestPQCode(t *testing.T) {
	err := W(W(&pq.Error{Code: PQErr42601SyntaxError}, "ZZ0109"), "ZZ010A")

	assert.Equal(t, PQErr42601SyntaxError, PQCode(err))
	assert.Equal(t, "", PQCode(nil))
	assert.Equal(t, "", PQCode(fmt.Errorf("plain")))
}
