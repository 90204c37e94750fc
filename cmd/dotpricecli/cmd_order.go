package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/order"
	"github.com/benithors/dotpricecli/internal/pricing"
)

func newOrderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create, pay for and track domain purchase orders",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
		},
	}
	cmd.AddCommand(newOrderCreateCmd(a))
	cmd.AddCommand(newOrderPayCmd(a))
	cmd.AddCommand(newOrderCancelCmd(a))
	cmd.AddCommand(newOrderStatusCmd(a))
	cmd.AddCommand(newOrderListCmd(a))
	return cmd
}

// orderErr maps service errors to exit codes: validation problems are
// usage errors, everything else is a runtime failure.
func orderErr(cmd *cobra.Command, err error) error {
	if errors.Is(err, order.ErrValidation) {
		return &cliError{Code: 2, Err: err, Cmd: cmd}
	}
	return runtimeErr(cmd, err)
}

// loadContact reads a contact file (yaml, json or toml) and lets
// individual flags override its fields.
func loadContact(path string, flags order.Contact) (order.Contact, error) {
	var c order.Contact
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("failed to read contact file: %w", err)
		}
		if err := v.Unmarshal(&c); err != nil {
			return c, fmt.Errorf("failed to parse contact file: %w", err)
		}
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&c.FirstName, flags.FirstName)
	override(&c.LastName, flags.LastName)
	override(&c.Email, flags.Email)
	override(&c.Phone, flags.Phone)
	override(&c.Company, flags.Company)
	override(&c.Address1, flags.Address1)
	override(&c.Address2, flags.Address2)
	override(&c.City, flags.City)
	override(&c.State, flags.State)
	override(&c.PostalCode, flags.PostalCode)
	override(&c.Country, flags.Country)
	return c, nil
}

func newOrderCreateCmd(a *app) *cobra.Command {
	var (
		contactFile string
		contact     order.Contact
		vendor      string
		method      string
		templateID  int
		years       int
	)

	cmd := &cobra.Command{
		Use:   "create <domain>",
		Short: "Price a domain and open a pending order for it",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if vendor == "" {
				return usageErr(cmd, errors.New("--vendor is required"))
			}
			if _, err := domain.Normalize(args[0]); err != nil {
				return usageErr(cmd, fmt.Errorf("%w: %q: %v", pricing.ErrInvalidDomain, args[0], err))
			}
			m, err := order.ParsePaymentMethod(method)
			if err != nil {
				return usageErr(cmd, err)
			}
			c, err := loadContact(contactFile, contact)
			if err != nil {
				return usageErr(cmd, err)
			}

			svc, err := a.orderService(cmd.Context())
			if err != nil {
				return runtimeErr(cmd, err)
			}
			o, err := svc.Create(cmd.Context(), order.CreateRequest{
				VendorID:   vendor,
				Domain:     args[0],
				Location:   a.location(),
				Contact:    c,
				Method:     m,
				TemplateID: templateID,
				Years:      years,
			})
			if err != nil {
				return orderErr(cmd, err)
			}
			return writeOrFail(cmd, writeOrders(a.stdout, a.outFormat, []*order.Order{o}))
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	f := cmd.Flags()
	f.StringVar(&vendor, "vendor", "", "Vendor placing the order")
	f.StringVar(&method, "method", string(order.MethodStripe), "Payment method: credit_card|paypal|stripe|bank_transfer|crypto")
	f.IntVar(&templateID, "template", 0, "Storefront template to deploy")
	f.IntVar(&years, "years", 1, "Registration period in years")
	f.StringVar(&contactFile, "contact", "", "Registrant contact file (yaml, json or toml)")
	f.StringVar(&contact.FirstName, "first-name", "", "Registrant first name")
	f.StringVar(&contact.LastName, "last-name", "", "Registrant last name")
	f.StringVar(&contact.Email, "email", "", "Registrant email")
	f.StringVar(&contact.Phone, "phone", "", "Registrant phone")
	f.StringVar(&contact.Company, "company", "", "Registrant company")
	f.StringVar(&contact.Address1, "address", "", "Registrant street address")
	f.StringVar(&contact.Address2, "address2", "", "Registrant address line 2")
	f.StringVar(&contact.City, "city", "", "Registrant city")
	f.StringVar(&contact.State, "state", "", "Registrant state or region")
	f.StringVar(&contact.PostalCode, "postal-code", "", "Registrant postal code")
	f.StringVar(&contact.Country, "contact-country", "", "Registrant ISO country code (default US)")
	return cmd
}

func newOrderPayCmd(a *app) *cobra.Command {
	var d order.PaymentDetails

	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Charge a pending order and queue its registration",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.orderService(cmd.Context())
			if err != nil {
				return runtimeErr(cmd, err)
			}
			o, err := svc.Pay(cmd.Context(), args[0], d)
			if o != nil && !errors.Is(err, order.ErrInvalidState) && !errors.Is(err, order.ErrValidation) {
				if werr := writeOrders(a.stdout, a.outFormat, []*order.Order{o}); werr != nil && err == nil {
					err = fmt.Errorf("failed to write output: %w", werr)
				}
			}
			if err != nil {
				return orderErr(cmd, err)
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	f := cmd.Flags()
	f.StringVar(&d.CardNumber, "card-number", "", "Card number (credit_card)")
	f.StringVar(&d.CardExpiry, "card-expiry", "", "Card expiry as MM/YY (credit_card)")
	f.StringVar(&d.CardCVV, "cvv", "", "Card security code (credit_card)")
	f.StringVar(&d.CardholderName, "cardholder", "", "Name on the card (credit_card)")
	f.StringVar(&d.PayPalEmail, "paypal-email", "", "PayPal account email (paypal)")
	f.StringVar(&d.BankAccount, "bank-account", "", "Bank account number (bank_transfer)")
	return cmd
}

func newOrderCancelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.orderService(cmd.Context())
			if err != nil {
				return runtimeErr(cmd, err)
			}
			o, err := svc.Cancel(cmd.Context(), args[0])
			if err != nil {
				return orderErr(cmd, err)
			}
			return writeOrFail(cmd, writeOrders(a.stdout, a.outFormat, []*order.Order{o}))
		},
	}
	cmd.SetFlagErrorFunc(usageErr)
	return cmd
}

func newOrderStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <order-id>",
		Short: "Show an order's progress and remaining steps",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.orderService(cmd.Context())
			if err != nil {
				return runtimeErr(cmd, err)
			}
			r, err := svc.Status(cmd.Context(), args[0])
			if err != nil {
				return orderErr(cmd, err)
			}
			return writeOrFail(cmd, writeReport(a.stdout, a.outFormat, r))
		},
	}
	cmd.SetFlagErrorFunc(usageErr)
	return cmd
}

func newOrderListCmd(a *app) *cobra.Command {
	var vendor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a vendor's orders, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if vendor == "" {
				return usageErr(cmd, errors.New("--vendor is required"))
			}
			svc, err := a.orderService(cmd.Context())
			if err != nil {
				return runtimeErr(cmd, err)
			}
			orders, err := svc.List(cmd.Context(), vendor)
			if err != nil {
				return orderErr(cmd, err)
			}
			return writeOrFail(cmd, writeOrders(a.stdout, a.outFormat, orders))
		},
	}
	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().StringVar(&vendor, "vendor", "", "Vendor whose orders to list")
	return cmd
}
