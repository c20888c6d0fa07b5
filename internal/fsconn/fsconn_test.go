package fsconn

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/kvbfs-project/kvbfs/internal/fsops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnRoundTripsCreateFile(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		env := struct {
			Seq  uint64          `json:"seq"`
			Type string          `json:"type"`
			Op   json.RawMessage `json:"op"`
		}{
			Seq:  7,
			Type: "CreateFile",
			Op:   json.RawMessage(`{"Parent":1,"Name":"hello.txt","Mode":420}`),
		}
		line, err := json.Marshal(env)
		require.NoError(t, err)
		_, err = client.Write(append(line, '\n'))
		require.NoError(t, err)

		buf := make([]byte, 4096)
		n, err := client.Read(buf)
		require.NoError(t, err)

		var reply envelope
		require.NoError(t, json.Unmarshal(buf[:n], &reply))
		assert.Equal(t, uint64(7), reply.Seq)
		assert.Equal(t, "CreateFile", reply.Type)
		assert.Empty(t, reply.Error)

		var got fsops.CreateFileOp
		require.NoError(t, json.Unmarshal(reply.Op, &got))
		assert.Equal(t, fsops.InodeID(42), got.Entry.Child)
	}()

	conn := New(context.Background(), server)
	op, err := conn.ReadOp()
	require.NoError(t, err)

	createOp, ok := op.(*fsops.CreateFileOp)
	require.True(t, ok)
	assert.Equal(t, fsops.InodeID(1), createOp.Parent)
	assert.Equal(t, "hello.txt", createOp.Name)
	assert.NotNil(t, createOp.Context())

	createOp.Entry.Child = 42
	conn.Reply(createOp, nil)
}

func TestNewOpRejectsUnknownType(t *testing.T) {
	_, err := newOp("Frobnicate")
	assert.Error(t, err)
}

func TestTypeNameStripsOpSuffix(t *testing.T) {
	assert.Equal(t, "CreateFile", typeName(&fsops.CreateFileOp{}))
	assert.Equal(t, "Poll", typeName(&fsops.PollOp{}))
}
