package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hyperfat/myfatfs/disks"
	"github.com/hyperfat/myfatfs/myfat"
	"github.com/hyperfat/myfatfs/shell"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "myfatfs",
		Usage: "Manage FAT-style file system images",
		Commands: []*cli.Command{
			{
				Name:      "shell",
				Usage:     "Start the interactive shell, optionally mounting an image first",
				Action:    runShell,
				ArgsUsage: "[IMAGE]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "password",
						Usage: "mask file data with a password-derived keystream",
					},
				},
			},
			{
				Name:      "format",
				Usage:     "Create or wipe an image",
				Action:    formatImage,
				ArgsUsage: "IMAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "profile",
						Usage: "predefined image profile to use",
						Value: shell.DefaultProfile,
					},
					&cli.Int64Flag{
						Name:  "size",
						Usage: "image size in bytes (overrides the profile)",
					},
					&cli.UintFlag{
						Name:  "block-size",
						Usage: "bytes per block (overrides the profile)",
					},
					&cli.StringFlag{
						Name:  "label",
						Usage: "volume label",
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Audit an image's on-disk structures",
				Action:    checkImage,
				ArgsUsage: "IMAGE",
			},
			{
				Name:   "profiles",
				Usage:  "List the predefined image profiles",
				Action: listProfiles,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func runShell(context *cli.Context) error {
	sh := shell.New(os.Stdout)

	if context.Args().Present() {
		mountLine := "mount " + context.Args().First()
		if password := context.String("password"); password != "" {
			mountLine += " " + password
		}
		err := sh.Execute(mountLine)
		if err != nil {
			return err
		}
	}
	return sh.Run(os.Stdin)
}

func formatImage(context *cli.Context) error {
	if !context.Args().Present() {
		return fmt.Errorf("missing image path")
	}

	profile, err := disks.GetPredefinedImageProfile(context.String("profile"))
	if err != nil {
		return err
	}

	options := myfat.FormatOptions{
		TotalSize: profile.TotalSizeBytes,
		BlockSize: profile.BlockSize,
		Label:     context.String("label"),
	}
	if context.Int64("size") != 0 {
		options.TotalSize = context.Int64("size")
	}
	if context.Uint("block-size") != 0 {
		options.BlockSize = context.Uint("block-size")
	}

	return myfat.Format(context.Args().First(), options)
}

func checkImage(context *cli.Context) error {
	if !context.Args().Present() {
		return fmt.Errorf("missing image path")
	}

	fs, err := myfat.Mount(context.Args().First())
	if err != nil {
		return err
	}
	defer fs.Unmount()

	err = fs.Check()
	if err != nil {
		return err
	}
	fmt.Println("volume is clean")
	return nil
}

func listProfiles(context *cli.Context) error {
	for _, profile := range disks.ListPredefinedImageProfiles() {
		fmt.Printf("%-8s %12d bytes, %5d-byte blocks  %s\n",
			profile.Slug, profile.TotalSizeBytes, profile.BlockSize, profile.Notes)
	}
	return nil
}
