package periph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/types"
)

func fakeCameraBoard() *probe.Fake {
	return &probe.Fake{
		Files: map[string]string{
			"/sys/class/video4linux/video0/name":        "mxc-isi-cap",
			"/sys/class/video4linux/video0/device/name": "ov5640",
		},
		Dirs: []string{"/dev/video0", "/dev/media0"},
	}
}

func TestCameraShortTest(t *testing.T) {
	camera := NewCamera(fakeCameraBoard(), config.Default(), testLogger())
	require.True(t, camera.Available())

	cams := camera.Cameras()
	require.Len(t, cams, 1)
	assert.Equal(t, "/dev/video0", cams[0].Node)
	assert.Equal(t, "ov5640", cams[0].Sensor)

	report := camera.ShortTest(context.Background())
	assert.Equal(t, types.Success, report.Result)
	assert.Equal(t, "Camera", report.Peripheral)
	assert.Contains(t, report.Details, "- /dev/video0 (mxc-isi-cap, ov5640)")
	assert.Contains(t, report.Details, "MIPI CSI-2: PASS")
	assert.Contains(t, report.Details, "Sensor: PASS (ov5640)")
	assert.Contains(t, report.Details, "Multi-camera: N/A")
}

func TestCameraNoSensorIdentifiedFails(t *testing.T) {
	env := &probe.Fake{Dirs: []string{"/dev/video0"}}
	camera := NewCamera(env, config.Default(), testLogger())

	report := camera.ShortTest(context.Background())
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "Sensor: FAIL (no sensor identified)")
}

func TestCameraUnavailable(t *testing.T) {
	camera := NewCamera(&probe.Fake{}, config.Default(), testLogger())
	assert.False(t, camera.Available())

	report := camera.ShortTest(context.Background())
	assert.Equal(t, types.NotSupported, report.Result)
	assert.Equal(t, "Camera not available", report.Details)
}

func TestCameraMonitorDetectsNodeChange(t *testing.T) {
	env := fakeCameraBoard()
	camera := NewCamera(env, config.Default(), testLogger())

	env.Dirs = []string{"/dev/media0"}

	report := camera.MonitorTest(context.Background(), time.Minute)
	assert.Equal(t, types.Failure, report.Result)
	assert.Contains(t, report.Details, "camera device set changed")
}
