package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/api/clients"
	"github.com/ruteri/setup-mpc-server/ceremony"
	"github.com/ruteri/setup-mpc-server/cmd/flags"
	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/ruteri/setup-mpc-server/transcript"
	"github.com/urfave/cli/v2"
)

var keyFileFlag = &cli.StringFlag{
	Name:     "key-file",
	Required: true,
	Usage:    "file holding the participant's hex-encoded secp256k1 private key",
}

var positionFlag = &cli.IntFlag{
	Name:  "position",
	Value: -1,
	Usage: "roster position, looked up by the key's address when omitted",
}

func main() {
	app := &cli.App{
		Name:  "ceremony-client",
		Usage: "Take part in an MPC setup ceremony",
		Flags: append([]cli.Flag{flags.ServerAddrFlag}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate a participant key",
				Flags: []cli.Flag{keyFileFlag},
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return err
					}
					if err := crypto.SaveECDSA(cCtx.String(keyFileFlag.Name), key); err != nil {
						return fmt.Errorf("failed to save key: %w", err)
					}
					fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
					return nil
				},
			},
			{
				Name:  "register",
				Usage: "Register the key's address with the ceremony",
				Flags: []cli.Flag{keyFileFlag},
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					client := newClient(cCtx)
					position, err := client.Register(cCtx.Context, crypto.PubkeyToAddress(key.PublicKey))
					if errors.Is(err, ceremony.ErrAlreadyRegistered) {
						fmt.Printf("already registered at position %d\n", position)
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("registered at position %d\n", position)
					return nil
				},
			},
			{
				Name:  "begin",
				Usage: "Begin the participant's turn",
				Flags: []cli.Flag{keyFileFlag, positionFlag},
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					client := newClient(cCtx)
					position, err := resolvePosition(cCtx.Context, client, crypto.PubkeyToAddress(key.PublicKey), cCtx.Int(positionFlag.Name))
					if err != nil {
						return err
					}
					p, err := client.BeginTurn(cCtx.Context, position)
					if err != nil {
						return err
					}
					return printJSON(p)
				},
			},
			{
				Name:  "submit",
				Usage: "Sign and submit a contribution for the running turn",
				Flags: []cli.Flag{
					keyFileFlag,
					positionFlag,
					&cli.StringFlag{Name: "payload-file", Required: true, Usage: "contribution payload"},
				},
				Action: func(cCtx *cli.Context) error {
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					payload, err := os.ReadFile(cCtx.String("payload-file"))
					if err != nil {
						return fmt.Errorf("failed to read payload: %w", err)
					}
					client := newClient(cCtx)
					position, err := resolvePosition(cCtx.Context, client, crypto.PubkeyToAddress(key.PublicKey), cCtx.Int(positionFlag.Name))
					if err != nil {
						return err
					}
					p, err := submit(cCtx.Context, client, key, position, payload)
					if err != nil {
						return err
					}
					return printJSON(p)
				},
			},
			{
				Name:  "contribute",
				Usage: "Wait for the participant's turn, then begin and submit",
				Flags: []cli.Flag{
					keyFileFlag,
					positionFlag,
					&cli.StringFlag{Name: "payload-file", Required: true, Usage: "contribution payload"},
					&cli.DurationFlag{Name: "poll-interval", Value: 2 * time.Second, Usage: "how often to poll the ceremony state"},
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					key, err := loadKey(cCtx)
					if err != nil {
						return err
					}
					payload, err := os.ReadFile(cCtx.String("payload-file"))
					if err != nil {
						return fmt.Errorf("failed to read payload: %w", err)
					}
					client := newClient(cCtx)
					position, err := resolvePosition(cCtx.Context, client, crypto.PubkeyToAddress(key.PublicKey), cCtx.Int(positionFlag.Name))
					if err != nil {
						return err
					}
					p, err := contribute(cCtx.Context, client, key, position, payload, cCtx.Duration("poll-interval"), logger)
					if err != nil {
						return err
					}
					return printJSON(p)
				},
			},
			{
				Name:  "status",
				Usage: "Print the ceremony state",
				Action: func(cCtx *cli.Context) error {
					state, err := newClient(cCtx).State(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(state)
				},
			},
			{
				Name:  "transcript",
				Usage: "Download the contribution submitted at a position",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "position", Required: true, Usage: "roster position"},
					&cli.StringFlag{Name: "out", Required: true, Usage: "output file"},
				},
				Action: func(cCtx *cli.Context) error {
					data, err := newClient(cCtx).Transcript(cCtx.Context, cCtx.Int("position"))
					if err != nil {
						return err
					}
					return os.WriteFile(cCtx.String("out"), data, 0644)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.CeremonyClient {
	return clients.NewCeremonyClient(cCtx.String(flags.ServerAddrFlag.Name))
}

func loadKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(cCtx.String(keyFileFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	return key, nil
}

// resolvePosition returns explicit when set, otherwise the roster position of address.
func resolvePosition(ctx context.Context, provider api.CeremonyProvider, address interfaces.Address, explicit int) (int, error) {
	if explicit >= 0 {
		return explicit, nil
	}
	state, err := provider.State(ctx)
	if err != nil {
		return -1, err
	}
	for _, p := range state.Participants {
		if p.Address == address {
			return p.Position, nil
		}
	}
	return -1, fmt.Errorf("%s is not registered", address.Hex())
}

// submit signs payload on top of the current transcript head and uploads it.
func submit(ctx context.Context, provider api.CeremonyProvider, key *ecdsa.PrivateKey, position int, payload []byte) (*api.ParticipantResponse, error) {
	state, err := provider.State(ctx)
	if err != nil {
		return nil, err
	}
	artifact, err := transcript.SignContribution(key, position, state.TranscriptHead(position), payload)
	if err != nil {
		return nil, err
	}
	return provider.SubmitContribution(ctx, position, artifact)
}

// contribute polls until the turn at position may begin, then begins and submits.
func contribute(ctx context.Context, provider api.CeremonyProvider, key *ecdsa.PrivateKey, position int, payload []byte, pollInterval time.Duration, logger *slog.Logger) (*api.ParticipantResponse, error) {
	begin := func() error {
		_, err := provider.BeginTurn(ctx, position)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ceremony.ErrOutOfTurn), errors.Is(err, ceremony.ErrCeremonyNotRunning):
			logger.Info("Waiting for turn", "position", position, "reason", err)
			return err
		case errors.Is(err, ceremony.ErrPersistenceUnavailable):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(pollInterval), ctx)
	if err := backoff.Retry(begin, b); err != nil {
		return nil, err
	}
	logger.Info("Turn started", "position", position)

	return submit(ctx, provider, key, position, payload)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
