// The wbc command loads a whole-body control profile, runs a number of
// control ticks against the configured robot model and prints the resulting
// joint commands. It is meant for checking a profile offline before wiring
// the runtime into a control loop.
package main

import (
	"os"
	"time"

	"github.com/edaniels/golog"
	"github.com/spf13/cobra"

	"go.viam.com/wbc/robotmodel"
	"go.viam.com/wbc/wbcconfig"
)

var (
	profilePath string
	ticks       int
	rate        time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wbc",
		Short: "whole-body control runtime tools",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run control ticks for a profile with a zero joint state",
		RunE:  runProfile,
	}
	runCmd.Flags().StringVarP(&profilePath, "profile", "p", "", "path to the profile YAML")
	runCmd.Flags().IntVarP(&ticks, "ticks", "n", 1, "number of control ticks to run")
	runCmd.Flags().DurationVarP(&rate, "rate", "r", 10*time.Millisecond, "time between ticks")
	if err := runCmd.MarkFlagRequired("profile"); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runProfile(cmd *cobra.Command, args []string) error {
	logger := golog.NewLogger("wbc")

	profile, err := wbcconfig.LoadProfile(profilePath)
	if err != nil {
		return err
	}
	model, sc, err := profile.Build(logger)
	if err != nil {
		return err
	}

	state := robotmodel.NewJointState(model.ActuatedJointNames())
	for i := 0; i < ticks; i++ {
		state.Time = time.Now()
		if err := model.Update(state, nil); err != nil {
			return err
		}
		hqp, err := sc.Update()
		if err != nil {
			return err
		}
		command, err := sc.Solve(hqp)
		if err != nil {
			return err
		}
		status, err := sc.UpdateTasksStatus()
		if err != nil {
			return err
		}
		for name, st := range status {
			logger.Infow("task status", "task", name, "activation", st.Activation, "timeout", st.Timeout)
		}
		for j, name := range command.Names {
			v := command.Values[j]
			logger.Infow("joint command", "joint", name,
				"velocity", v.Velocity, "acceleration", v.Acceleration, "effort", v.Effort)
		}
		time.Sleep(rate)
	}
	return nil
}
