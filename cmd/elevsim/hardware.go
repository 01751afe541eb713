package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.einride.tech/can/pkg/socketcan"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/elevsim/internal/elevator"
	"github.com/san-kum/elevsim/internal/host"
	"github.com/san-kum/elevsim/internal/motor"
)

var (
	canInterface string
	moveTimeout  time.Duration
	hold         bool
)

func hardwareCommands() []*cobra.Command {
	driveCmd := &cobra.Command{
		Use:   "drive [height]",
		Short: "move a real elevator over CAN to a height in meters",
		Args:  cobra.ExactArgs(1),
		RunE:  driveHardware,
	}
	driveCmd.Flags().StringVar(&canInterface, "can", "", "CAN interface (overrides config)")
	driveCmd.Flags().DurationVar(&moveTimeout, "timeout", 10*time.Second, "give up after")
	driveCmd.Flags().BoolVar(&hold, "hold", false, "keep holding the height until interrupted")

	emulateCmd := &cobra.Command{
		Use:   "emulate",
		Short: "answer on a CAN bus as a simulated motor controller",
		Args:  cobra.NoArgs,
		RunE:  emulateDevice,
	}
	emulateCmd.Flags().StringVar(&canInterface, "can", "", "CAN interface (overrides config)")

	return []*cobra.Command{driveCmd, emulateCmd}
}

func iface(configured string) string {
	if canInterface != "" {
		return canInterface
	}
	return configured
}

func driveHardware(cmd *cobra.Command, args []string) error {
	target, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return errors.Wrap(err, "height")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	dev, err := motor.DialCAN(ctx, iface(cfg.CAN.Interface), motor.CANConfig{
		DeviceID:      cfg.Actuator.DeviceID,
		StatusTimeout: cfg.CAN.StatusTimeout,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	sub, err := elevator.New(ctx, cfg.Actuator, dev, logger,
		elevator.WithPeriod(cfg.Loop.Period),
		elevator.WithInitialHeight(cfg.Plant.StartHeight))
	if err != nil {
		dev.Close()
		return err
	}
	defer func() {
		// ctx may already be cancelled; the stop frame still has to go out.
		if err := sub.Close(context.Background()); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()

	loop := host.NewLoop(cfg.Loop.Period, clock.New(), logger, sub)
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	g.Go(func() error {
		if err := loop.Run(loopCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopLoop()
		moveCtx, cancel := context.WithTimeout(gctx, moveTimeout)
		defer cancel()
		if err := sub.MoveToHeight(moveCtx, target); err != nil {
			return errors.Wrapf(err, "move to %.3f m (at %.3f m)", target, sub.Height())
		}
		fmt.Printf("reached %.3f m (target %.3f m)\n", sub.Height(), target)
		if !hold {
			return nil
		}
		fmt.Println("holding, interrupt to release")
		if err := sub.Hold(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func emulateDevice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	plant, err := cfg.NewElevatorSim()
	if err != nil {
		return err
	}
	conv, err := cfg.Actuator.Converter()
	if err != nil {
		return err
	}
	sim := motor.NewSimulated(plant, conv)
	device := &motor.Responder{ID: cfg.Actuator.DeviceID, Motor: sim}

	ctx := cmd.Context()
	name := iface(cfg.CAN.Interface)
	conn, err := socketcan.DialContext(ctx, "can", name)
	if err != nil {
		return errors.Wrapf(err, "socketcan dial %s", name)
	}
	tx := socketcan.NewTransmitter(conn)
	rx := socketcan.NewReceiver(conn)

	publish := host.PeriodicFunc(func(ctx context.Context) error {
		return device.Publish(ctx, tx)
	})
	loop := host.NewLoop(cfg.Loop.Period, clock.New(), logger, host.SimulationPeriodic(sim, cfg.Loop.Period), publish)

	logger.Info("emulating motor controller",
		zap.String("interface", name),
		zap.Uint8("device", cfg.Actuator.DeviceID),
		zap.Float64("start_height", cfg.Plant.StartHeight))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := device.Serve(gctx, rx, logger)
		if gctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "receive")
	})
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
