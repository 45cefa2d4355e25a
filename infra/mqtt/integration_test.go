package mqtt

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/homefix/core/messaging"
)

// TestIntegration delivers a technician alert through a real Mosquitto broker.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)
	brokerURL := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	sub := paho.NewClient(paho.NewClientOptions().AddBroker(brokerURL).SetClientID("technician-app"))
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(250)

	received := make(chan []byte, 1)
	token = sub.Subscribe("homefix/technicians/t1/alerts", 1, func(_ paho.Client, m paho.Message) {
		received <- m.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	cli, err := NewPahoClient(Config{Broker: brokerURL, ClientID: "homefix-test", QoS: 1})
	require.NoError(t, err)
	defer cli.Disconnect()

	require.NoError(t, cli.Notify(ctx, messaging.ChannelTechnicianAlert, messaging.Payload{Recipient: "t1", ReferenceID: "o1"}))
	select {
	case b := <-received:
		require.Contains(t, string(b), `"referenceId":"o1"`)
	case <-time.After(5 * time.Second):
		t.Fatal("alert not received")
	}
}
