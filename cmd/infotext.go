package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ollama/seg/guidance"
	"github.com/ollama/seg/host/infotext"
)

func NewInfotextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infotext LINE",
		Short: "Read guidance settings from a generation parameter line",
		Args:  cobra.ExactArgs(1),
		RunE:  infotextHandler,
	}

	cmd.Flags().String("format", "text", "Output format (text, json, cbor)")
	return cmd
}

func infotextHandler(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	p, err := guidance.ParamsFromInfotext(infotext.Parse(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "text":
		fmt.Fprintln(out, infotext.Format(p.Infotext()))
	case "json":
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
	case "cbor":
		b, err := p.MarshalBinary()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, hex.EncodeToString(b))
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	return nil
}
