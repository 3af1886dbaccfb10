package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/loomstore/internal/flash"
)

// FlashOptions holds flags shared by the flash subcommands.
type FlashOptions struct {
	*RootOptions
	Offset int
	Length int
	All    bool
}

// FlashInfo describes the configured flash image.
type FlashInfo struct {
	Path        string      `json:"path"`
	PageCount   int         `json:"page_count"`
	PageSize    int         `json:"page_size"`
	Size        int64       `json:"size"`
	ErasedPages int         `json:"erased_pages"`
	Pages       []FlashPage `json:"pages"`
}

// FlashPage is the state of one page.
type FlashPage struct {
	Page   int    `json:"page"`
	Erased bool   `json:"erased"`
	Digest string `json:"digest"`
}

// RenderText prints a summary line followed by one line per page.
func (i FlashInfo) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d pages x %d bytes (%d bytes), %d erased\n",
		i.Path, i.PageCount, i.PageSize, i.Size, i.ErasedPages)
	for _, p := range i.Pages {
		state := "programmed"
		if p.Erased {
			state = "erased"
		}
		fmt.Fprintf(w, "  page %4d  %-10s  %s\n", p.Page, state, p.Digest)
	}
}

// FlashData is the result of a read or write.
type FlashData struct {
	Page   int    `json:"page"`
	Offset int    `json:"offset"`
	Data   string `json:"data"` // hex
}

// RenderText prints a hex dump.
func (d FlashData) RenderText(w io.Writer) {
	raw, _ := hex.DecodeString(d.Data)
	fmt.Fprintf(w, "page %d offset %d (%d bytes)\n", d.Page, d.Offset, len(raw))
	fmt.Fprint(w, hex.Dump(raw))
}

// NewFlashCommand creates the flash command group.
func NewFlashCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Inspect and modify the virtual flash image",
		Long: `Operate on the flash image configured by flash.path.

The image is created fully erased (0xFF) when missing, and reinitialized
when its size does not match flash.page_count x flash.page_size.`,
	}

	cmd.AddCommand(newFlashInfoCommand(rootOpts))
	cmd.AddCommand(newFlashEraseCommand(rootOpts))
	cmd.AddCommand(newFlashReadCommand(rootOpts))
	cmd.AddCommand(newFlashWriteCommand(rootOpts))

	return cmd
}

func newFlashInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlashOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "info",
		Short: "Show geometry, erased pages and page digests",
		Example: `  loomstore flash info
  loomstore flash info --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlashInfo(opts, cmd)
		},
	}
}

func newFlashEraseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "erase [page...]",
		Short: "Erase pages back to 0xFF",
		Example: `  loomstore flash erase 3 4
  loomstore flash erase --all`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlashErase(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "erase every page")

	return cmd
}

func newFlashReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "read <page>",
		Short:         "Read bytes from a page",
		Example:       `  loomstore flash read 0 --offset 16 --length 32`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlashRead(opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "byte offset within the page")
	cmd.Flags().IntVar(&opts.Length, "length", -1, "number of bytes (default: to end of page)")

	return cmd
}

func newFlashWriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FlashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "write <page> <hex>",
		Short: "Program bytes into a page",
		Long: `Program hex-encoded bytes into a page at --offset.

With flash.enforce_flash_bits enabled, a write that would set a bit
cleared since the last erase is rejected.`,
		Example:       `  loomstore flash write 2 deadbeef --offset 8`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlashWrite(opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "byte offset within the page")

	return cmd
}

// openFlash opens the configured image.
func openFlash(e *env) (*flash.File, error) {
	f, err := flash.Open(e.cfg.FlashPath(), e.cfg.Flash.PageCount, e.cfg.Flash.PageSize, flash.Options{
		EnforceFlashBits: e.cfg.Flash.EnforceFlashBits,
		Durable:          e.cfg.Flash.Durable,
		Logger:           &e.log,
		Metrics:          e.metrics,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open flash image", err)
	}
	return f, nil
}

func runFlashInfo(opts *FlashOptions, cmd *cobra.Command) error {
	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	f, err := openFlash(e)
	if err != nil {
		return err
	}
	defer f.Close()

	info := FlashInfo{
		Path:      f.Path(),
		PageCount: f.PageCount(),
		PageSize:  f.PageSize(),
		Size:      int64(f.PageCount()) * int64(f.PageSize()),
		Pages:     make([]FlashPage, 0, f.PageCount()),
	}
	for i := range f.PageCount() {
		page := flash.PageID(i)
		erased, err := f.IsErased(page)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read page", err)
		}
		digest, err := f.Digest(page)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to digest page", err)
		}
		if erased {
			info.ErasedPages++
		}
		info.Pages = append(info.Pages, FlashPage{
			Page:   i,
			Erased: erased,
			Digest: fmt.Sprintf("%016x", digest),
		})
	}

	return e.out.Success(info)
}

func runFlashErase(opts *FlashOptions, cmd *cobra.Command, args []string) error {
	if opts.All == (len(args) > 0) {
		return NewExitError(ExitCommandError, "specify pages or --all")
	}

	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	f, err := openFlash(e)
	if err != nil {
		return err
	}
	defer f.Close()

	var pages []flash.PageID
	if opts.All {
		for i := range f.PageCount() {
			pages = append(pages, flash.PageID(i))
		}
	} else {
		for _, arg := range args {
			page, err := parsePage(arg)
			if err != nil {
				return err
			}
			pages = append(pages, page)
		}
	}

	for _, page := range pages {
		if err := guardFlash(e.out, func() error { return f.Erase(page) }); err != nil {
			return err
		}
		e.out.VerboseLog("erased page %d", page)
	}

	return e.out.Success(fmt.Sprintf("Erased %d page(s)", len(pages)))
}

func runFlashRead(opts *FlashOptions, cmd *cobra.Command, pageArg string) error {
	page, err := parsePage(pageArg)
	if err != nil {
		return err
	}

	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	f, err := openFlash(e)
	if err != nil {
		return err
	}
	defer f.Close()

	length := opts.Length
	if length < 0 {
		length = max(f.PageSize()-opts.Offset, 0)
	}
	buf := make([]byte, length)
	if err := guardFlash(e.out, func() error { return f.Read(page, opts.Offset, buf) }); err != nil {
		return err
	}

	return e.out.Success(FlashData{
		Page:   page.Index(),
		Offset: opts.Offset,
		Data:   hex.EncodeToString(buf),
	})
}

func runFlashWrite(opts *FlashOptions, cmd *cobra.Command, pageArg, dataArg string) error {
	page, err := parsePage(pageArg)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(dataArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid hex data", err)
	}

	e, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	f, err := openFlash(e)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := guardFlash(e.out, func() error { return f.Write(page, opts.Offset, data) }); err != nil {
		return err
	}

	return e.out.Success(FlashData{
		Page:   page.Index(),
		Offset: opts.Offset,
		Data:   hex.EncodeToString(data),
	})
}

func parsePage(arg string) (flash.PageID, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid page %q", arg), err)
	}
	return flash.PageID(n), nil
}

// guardFlash runs fn and turns the device's contract panics into a reported
// failure. Any other panic is re-raised.
func guardFlash(out *OutputFormatter, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		perr, ok := r.(error)
		if !ok {
			panic(r)
		}

		var boundsErr *flash.BoundsError
		var bitErr *flash.BitViolationError
		switch {
		case errors.As(perr, &boundsErr):
			_ = out.Error(CodeFlashViolated, boundsErr.Error(), boundsErr)
			err = WrapExitError(ExitFailure, "flash access out of bounds", boundsErr)
		case errors.As(perr, &bitErr):
			_ = out.Error(CodeFlashViolated, bitErr.Error(), bitErr)
			err = WrapExitError(ExitFailure, "flash write rejected", bitErr)
		default:
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		return WrapExitError(ExitCommandError, "flash I/O failed", err)
	}
	return nil
}
