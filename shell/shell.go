// Package shell is the interactive command layer over the core engine. It
// tokenizes one line at a time and dispatches to the mounted file system;
// all real work happens in the myfat package.
package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	myfatfs "github.com/hyperfat/myfatfs"
	"github.com/hyperfat/myfatfs/disks"
	"github.com/hyperfat/myfatfs/myfat"
)

// ErrExit is returned by [Shell.Execute] when the user asks to quit.
var ErrExit = errors.New("exit requested")

// DefaultProfile is the image profile `format` uses when none is named.
const DefaultProfile = "small"

// Shell holds the dispatch state: the mounted file system (if any) and the
// writer command output goes to.
type Shell struct {
	fs  *myfat.FileSystem
	out io.Writer
}

// New creates a shell writing its output to `out`.
func New(out io.Writer) *Shell {
	return &Shell{out: out}
}

// FileSystem returns the currently mounted file system, or nil.
func (shell *Shell) FileSystem() *myfat.FileSystem {
	return shell.fs
}

// Run reads commands from `in` until EOF or `exit`, printing a prompt with
// the current directory. Errors from individual commands are reported and
// the loop continues; only EOF and `exit` end it.
func (shell *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	// Writes can carry whole-file payloads on one line.
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	for {
		fmt.Fprintf(shell.out, "%s> ", shell.promptPath())
		if !scanner.Scan() {
			break
		}

		err := shell.Execute(scanner.Text())
		if err == ErrExit {
			break
		}
		if err != nil {
			fmt.Fprintf(shell.out, "error: %s\n", err.Error())
		}
	}

	if shell.fs != nil {
		err := shell.fs.Unmount()
		shell.fs = nil
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (shell *Shell) promptPath() string {
	if shell.fs == nil {
		return "(no image)"
	}
	return shell.fs.CurrentPath()
}

// Execute runs a single command line. Unknown commands and bad argument
// counts are errors; an empty line is a no-op.
func (shell *Shell) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "format":
		return shell.cmdFormat(rest)
	case "mount":
		return shell.cmdMount(rest)
	case "unmount":
		return shell.cmdUnmount()
	case "ls":
		return shell.cmdList()
	case "cd":
		return shell.cmdChangeDir(rest)
	case "mkdir":
		return shell.withMounted(func(fs *myfat.FileSystem) error {
			return fs.MakeDir(rest)
		})
	case "rmdir":
		return shell.withMounted(func(fs *myfat.FileSystem) error {
			return fs.RemoveDir(rest)
		})
	case "create":
		return shell.withMounted(func(fs *myfat.FileSystem) error {
			return fs.CreateFile(rest)
		})
	case "write":
		return shell.cmdWrite(rest)
	case "read":
		return shell.cmdRead(rest)
	case "delete":
		return shell.withMounted(func(fs *myfat.FileSystem) error {
			return fs.DeleteFile(rest)
		})
	case "truncate":
		return shell.cmdTruncate(rest)
	case "stat":
		return shell.cmdStat()
	case "check":
		return shell.withMounted(func(fs *myfat.FileSystem) error {
			err := fs.Check()
			if err != nil {
				return err
			}
			fmt.Fprintln(shell.out, "volume is clean")
			return nil
		})
	case "help":
		return shell.cmdHelp()
	case "exit":
		return ErrExit
	default:
		return fmt.Errorf("unknown command %q; try `help`", command)
	}
}

// withMounted runs `action` against the mounted file system, failing with
// [myfatfs.ErrNotMounted] when there isn't one.
func (shell *Shell) withMounted(action func(*myfat.FileSystem) error) error {
	if shell.fs == nil {
		return myfatfs.ErrNotMounted
	}
	return action(shell.fs)
}

func (shell *Shell) cmdFormat(args string) error {
	path, slug, _ := strings.Cut(args, " ")
	if path == "" {
		return fmt.Errorf("usage: format <path> [profile]")
	}
	if slug == "" {
		slug = DefaultProfile
	}

	profile, err := disks.GetPredefinedImageProfile(slug)
	if err != nil {
		return err
	}

	err = myfat.Format(path, myfat.FormatOptions{
		TotalSize: profile.TotalSizeBytes,
		BlockSize: profile.BlockSize,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(shell.out, "formatted %s (%d bytes, %d-byte blocks)\n",
		path, profile.TotalSizeBytes, profile.BlockSize)
	return nil
}

func (shell *Shell) cmdMount(args string) error {
	path, password, _ := strings.Cut(args, " ")
	if path == "" {
		return fmt.Errorf("usage: mount <path> [password]")
	}

	// A previously mounted image is released first.
	if shell.fs != nil {
		err := shell.fs.Unmount()
		shell.fs = nil
		if err != nil {
			return err
		}
	}

	var options []myfat.MountOption
	if password != "" {
		options = append(options, myfat.WithPassword(password))
	}

	fs, err := myfat.Mount(path, options...)
	if err != nil {
		return err
	}
	shell.fs = fs
	return nil
}

func (shell *Shell) cmdUnmount() error {
	if shell.fs == nil {
		return myfatfs.ErrNotMounted
	}
	err := shell.fs.Unmount()
	shell.fs = nil
	return err
}

func (shell *Shell) cmdList() error {
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		infos, err := fs.List()
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(shell.out, "%-4s %10d  %s\n", info.Type, info.Size, info.Name)
		}
		fmt.Fprintf(shell.out, "%d entries\n", len(infos))
		return nil
	})
}

func (shell *Shell) cmdChangeDir(name string) error {
	if name == "" {
		return fmt.Errorf("usage: cd <name>")
	}
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		return fs.ChangeDir(name)
	})
}

func (shell *Shell) cmdWrite(args string) error {
	name, payload, _ := strings.Cut(args, " ")
	if name == "" {
		return fmt.Errorf("usage: write <name> <data>")
	}
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		return fs.WriteFile(name, []byte(payload))
	})
}

func (shell *Shell) cmdRead(name string) error {
	if name == "" {
		return fmt.Errorf("usage: read <name>")
	}
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		contents, err := fs.ReadFile(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(shell.out, "%s\n", contents)
		return nil
	})
}

func (shell *Shell) cmdTruncate(args string) error {
	name, sizeText, _ := strings.Cut(args, " ")
	if name == "" || sizeText == "" {
		return fmt.Errorf("usage: truncate <name> <size>")
	}

	size, err := strconv.ParseUint(sizeText, 10, 32)
	if err != nil {
		return fmt.Errorf("bad size %q: %w", sizeText, err)
	}
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		return fs.TruncateFile(name, uint32(size))
	})
}

func (shell *Shell) cmdStat() error {
	return shell.withMounted(func(fs *myfat.FileSystem) error {
		stat, err := fs.Stat()
		if err != nil {
			return err
		}
		fmt.Fprintf(shell.out, "label:         %s\n", stat.Label)
		fmt.Fprintf(shell.out, "block size:    %d\n", stat.BlockSize)
		fmt.Fprintf(shell.out, "total blocks:  %d\n", stat.TotalBlocks)
		fmt.Fprintf(shell.out, "free blocks:   %d\n", stat.BlocksFree)
		fmt.Fprintf(shell.out, "dir slots:     %d used, %d free\n", stat.Files, stat.FilesFree)
		return nil
	})
}

func (shell *Shell) cmdHelp() error {
	help := []string{
		"format <path> [profile]  create and format an image",
		"mount <path> [password]  mount an image",
		"unmount                  unmount the current image",
		"ls                       list the current directory",
		"cd <name>                enter a subdirectory ('.', '..' and '/' work)",
		"mkdir <name>             create a subdirectory",
		"rmdir <name>             remove an empty subdirectory",
		"create <name>            create an empty file",
		"write <name> <data>      overwrite a file with the rest of the line",
		"read <name>              print a file's contents",
		"delete <name>            remove a file",
		"truncate <name> <size>   shrink a file",
		"stat                     show volume statistics",
		"check                    audit the volume's structures",
		"help                     this text",
		"exit                     quit",
	}
	for _, line := range help {
		fmt.Fprintln(shell.out, line)
	}
	return nil
}
