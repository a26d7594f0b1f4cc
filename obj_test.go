package oftest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackyang74/oftest/ofp4"
)

func TestParse(t *testing.T) {
	data, err := ofp4.Encode(&ofp4.Message{
		Header: ofp4.Header{Version: ofp4.OFP_VERSION, Type: ofp4.OFPT_ECHO_REQUEST, Xid: 5},
		Body:   ofp4.Bytes("hi"),
	})
	require.NoError(t, err)
	obj, err := Parse(data)
	require.NoError(t, err)
	msg, ok := obj.(*ofp4.Message)
	require.True(t, ok)
	assert.Equal(t, uint32(5), msg.Xid)
	assert.Equal(t, ofp4.Bytes("hi"), msg.Body)

	data[0] = 1
	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Parse(nil)
	var decodeErr *ofp4.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, ofp4.Truncated, decodeErr.Kind)
}
