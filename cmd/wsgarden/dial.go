package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/wsgarden/application"
	"github.com/lk2023060901/wsgarden/internal/network"
	"github.com/lk2023060901/wsgarden/internal/network/endpoint"
	"github.com/lk2023060901/wsgarden/internal/network/session"
)

// printer 将收到的消息写入 replies。
type printer struct {
	session.NopEndpoint
	replies chan string
}

func (p *printer) OnMessage(_ *session.Session, _ network.MessageType, data []byte) {
	p.replies <- string(data)
}

func dialCmd() *cobra.Command {
	var (
		configPath   string
		subprotocols []string
		messages     []string
		wait         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "dial <url>",
		Short: "Connect to a WebSocket server and print the replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := application.New(application.WithConfigPath(configPath))
			if err := app.Run(); err != nil {
				return err
			}
			defer app.Shutdown()

			p := &printer{replies: make(chan string, len(messages))}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			sess, err := app.Container().ConnectWithConfig(ctx, p,
				endpoint.ClientConfig{PreferredSubprotocols: subprotocols}, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("connected, subprotocol=%q\n", sess.Subprotocol())

			for _, m := range messages {
				if err := sess.SendText(m); err != nil {
					return err
				}
				select {
				case reply := <-p.replies:
					fmt.Println(reply)
				case <-time.After(wait):
					return fmt.Errorf("no reply within %s", wait)
				}
			}
			return sess.Close(session.NewCloseReason(session.CloseNormalClosure, "bye"))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (default ./config.yaml)")
	cmd.Flags().StringSliceVar(&subprotocols, "subprotocol", nil, "Preferred sub-protocols")
	cmd.Flags().StringArrayVarP(&messages, "message", "m", []string{"hello"}, "Text messages to send")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "Time to wait for each reply")

	return cmd
}
