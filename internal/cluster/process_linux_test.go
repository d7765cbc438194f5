//go:build linux

package cluster

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSysProcAttr_ParentDeathSignal(t *testing.T) {
	attr := workerSysProcAttr()
	require.NotNil(t, attr)
	assert.Equal(t, syscall.SIGTERM, attr.Pdeathsig)
}
