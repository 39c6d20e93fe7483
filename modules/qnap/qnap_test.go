package qnap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oblq/qnapec/modules/invoker"
	"github.com/oblq/qnapec/modules/invoker/invokertest"
	"github.com/oblq/qnapec/modules/qnap"
)

func TestOperations(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.FanStatus[7] = 0
	lib.FanSpeed[7] = 1200
	lib.PWM[7] = 90
	lib.Temperature[1] = 41.2345

	inv, _ := invokertest.New(lib)
	ctx := context.Background()

	status, err := qnap.FanStatus(ctx, inv, 7, true)
	require.NoError(t, err)
	require.Equal(t, uint32(0), status)

	speed, err := qnap.FanSpeed(ctx, inv, 7, true)
	require.NoError(t, err)
	require.Equal(t, uint32(1200), speed)

	pwm, err := qnap.FanPWM(ctx, inv, 7, true)
	require.NoError(t, err)
	require.Equal(t, uint32(90), pwm)

	temp, err := qnap.Temperature(ctx, inv, 1, true)
	require.NoError(t, err)
	require.Equal(t, int64(41235), temp)

	require.NoError(t, qnap.SetFanPWM(ctx, inv, 7, 200, true))
	require.Equal(t, uint32(200), lib.GetPWM(7))

	_, err = qnap.FanSpeed(ctx, inv, 8, false)
	require.ErrorIs(t, err, invoker.ErrLibrary)
}

func TestConversationIsCaller(t *testing.T) {
	lib := invokertest.NewLibrary()
	lib.PWM[5] = 10

	inv, _ := invokertest.New(lib)
	conversation := inv.Acquire()
	defer conversation.Release()

	require.NoError(t, qnap.SetFanPWM(context.Background(), conversation, 5, 15, false))
	pwm, err := qnap.FanPWM(context.Background(), conversation, 5, false)
	require.NoError(t, err)
	require.Equal(t, uint32(15), pwm)
}
