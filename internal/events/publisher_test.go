package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConnectWithoutURLIsNoop(t *testing.T) {
	publisher, closeFn, err := Connect("", "course", zerolog.Nop())
	require.NoError(t, err)
	require.IsType(t, NopPublisher{}, publisher)
	closeFn()

	require.NoError(t, publisher.Publish(context.Background(), GradeEvent{Type: TypeOverride}))
}

func TestNATSPublisherSubject(t *testing.T) {
	require.Equal(t, "csharp.spring26.grades", NewNATSPublisher(nil, "csharp:spring26", zerolog.Nop()).Subject())
	require.Equal(t, "course.grades", NewNATSPublisher(nil, "", zerolog.Nop()).Subject())
}
