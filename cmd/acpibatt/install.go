package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/acpibatt/pkg/config"
	daemonutils "github.com/charlie0129/acpibatt/pkg/utils/daemon"
	"github.com/charlie0129/acpibatt/pkg/utils/ptr"
)

var gInstallation = "Installation:"

func init() {
	commandGroups = append(commandGroups, gInstallation)
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install acpibatt (system-wide)",
		GroupID: gInstallation,
		Long: `Install acpibatt daemon as a systemd service (system-wide).

This makes acpibatt run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the acpibatt daemon. Use the --allow-non-root-access flag to let other users query it without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			raw, err := config.NewRawFileConfigFromConfig(conf)
			if err != nil {
				return err
			}
			raw.AllowNonRootAccess = ptr.To(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the acpibatt daemon.")
			} else {
				logrus.Info("only root user is allowed to access the acpibatt daemon.")
			}

			err = config.NewFileFromConfig(raw, configPath).Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `acpibatt install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access acpibatt daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall acpibatt (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall acpibatt daemon from systemd (system-wide).

This stops acpibatt and removes its unit file.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `acpibatt' again. If you want a complete uninstall, you can remove both config file and acpibatt itself manually.\n", configPath)

			return nil
		},
	}
}
