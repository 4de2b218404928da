package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/apiclient"
	"storefront/internal/cart"
	"storefront/internal/obs"
	"storefront/internal/session"
)

type ShellOptions struct {
	*RootOptions
	Prompt string
}

func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShellOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive cart session",
		Long: `Start a line-oriented cart session.

The cart works signed out; after login it is replaced by the server copy
and every change is mirrored to the server in the background.

Commands:
  login <email> <password>   sign in and load the server cart
  logout                     sign out and empty the local cart
  products [query]           list catalog products
  add <product-id> [qty]     add a product (default qty 1)
  set <line|product> <qty>   replace a quantity, 0 removes
  rm <line|product>          remove a line
  clear                      empty the cart
  reload                     replace the cart with the server copy
  show                       print the cart
  checkout                   place the order and empty the cart
  orders                     list placed orders
  quit                       leave the shell`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := obs.NewLogger(cmd.ErrOrStderr(), "text", opts.Client.LogLevel)
			client := opts.apiClient()
			source := session.New()
			engine := cart.New(client, source, cart.Options{
				SyncTimeout: opts.Client.SyncTimeout,
				Logger:      logger,
			})
			sh := &shell{
				opts:    opts,
				client:  client,
				session: source,
				engine:  engine,
				out:     cmd.OutOrStdout(),
			}
			defer func() {
				engine.Wait()
				engine.Close()
			}()
			return sh.run(cmd.Context(), cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&opts.Prompt, "prompt", "cartctl> ", "prompt printed before each command")

	return cmd
}

type shell struct {
	opts    *ShellOptions
	client  *apiclient.Client
	session *session.Source
	engine  *cart.Engine
	out     io.Writer
}

var errQuit = errors.New("quit")

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.opts.Prompt)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		err := s.exec(ctx, strings.Fields(line))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		// Remote work is fire-and-forget; settle it so each command sees the
		// outcome of the previous one.
		s.engine.Wait()
		if s.engine.State().SyncState == cart.SyncError {
			fmt.Fprintln(s.out, "warning: cart is out of sync with the server, run reload")
		}
	}
}

func (s *shell) exec(ctx context.Context, args []string) error {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "quit", "exit":
		return errQuit
	case "login":
		return s.login(ctx, rest)
	case "logout":
		s.session.Clear()
		fmt.Fprintln(s.out, "signed out")
		return nil
	case "products":
		page, err := s.client.Products(ctx, apiclient.ProductFilter{Query: strings.Join(rest, " ")})
		if err != nil {
			return err
		}
		return s.print(page, func(w io.Writer) error { return RenderProducts(w, page) })
	case "add":
		return s.add(ctx, rest)
	case "set":
		if len(rest) != 2 {
			return errors.New("usage: set <line|product> <qty>")
		}
		qty, err := strconv.Atoi(rest[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", rest[1])
		}
		return s.engine.SetQuantity(s.resolveLine(rest[0]), qty)
	case "rm":
		if len(rest) != 1 {
			return errors.New("usage: rm <line|product>")
		}
		return s.engine.RemoveItem(s.resolveLine(rest[0]))
	case "clear":
		return s.engine.Clear()
	case "reload":
		return s.engine.Reload()
	case "show":
		s.engine.Wait()
		return s.show()
	case "checkout":
		return s.checkout(ctx)
	case "orders":
		id := s.session.Current()
		if id.IsZero() {
			return cart.ErrNoIdentity
		}
		orders, err := s.client.Orders(ctx, id.Token)
		if err != nil {
			return err
		}
		return s.print(orders, func(w io.Writer) error {
			if len(orders) == 0 {
				_, err := fmt.Fprintln(w, "no orders")
				return err
			}
			for _, o := range orders {
				fmt.Fprintf(w, "%s  %s  %s\n", o.ID, o.Status, o.TotalAmount.StringFixed(2))
			}
			return nil
		})
	case "help":
		fmt.Fprintln(s.out, "commands: login logout products add set rm clear reload show checkout orders quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (s *shell) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: login <email> <password>")
	}
	sess, err := s.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	s.session.Set(sess.Identity(), sess.ExpiresAt)
	fmt.Fprintf(s.out, "signed in as %s\n", sess.User.Email)
	return nil
}

func (s *shell) add(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: add <product-id> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		qty = n
	}
	p, err := s.client.Product(ctx, args[0])
	if err != nil {
		return err
	}
	return s.engine.AddItem(apiclient.CartProduct(p), qty)
}

func (s *shell) checkout(ctx context.Context) error {
	id := s.session.Current()
	if id.IsZero() {
		return cart.ErrNoIdentity
	}
	if len(s.engine.State().Lines) == 0 {
		return errors.New("cart is empty")
	}
	receipt, err := s.client.PlaceOrder(ctx, id.Token)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %s\n", receipt.Message, receipt.OrderID)
	return s.engine.Clear()
}

// resolveLine accepts either a line id or the product id of a line.
func (s *shell) resolveLine(ref string) string {
	snap := s.engine.State()
	if _, ok := snap.Line(ref); ok {
		return ref
	}
	if l, ok := snap.LineByProduct(ref); ok {
		return l.LineID
	}
	return ref
}

func (s *shell) show() error {
	v := CartView{Snapshot: s.engine.State(), Phase: s.engine.Phase()}
	if f, ok := s.engine.LastFailure(); ok {
		v.Failure = &f
	}
	return s.print(v.Snapshot, func(w io.Writer) error { return RenderCart(w, v) })
}

func (s *shell) print(v interface{}, text func(io.Writer) error) error {
	if s.opts.Format == "json" {
		return writeJSON(s.out, v)
	}
	return text(s.out)
}
