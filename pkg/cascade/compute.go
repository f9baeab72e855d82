package cascade

import (
	"fmt"

	"github.com/goliatone/go-formflow/pkg/condition"
	"github.com/goliatone/go-formflow/pkg/vat"
)

// ComputeFunc derives a field value from the section values named by args.
type ComputeFunc func(args []string, values condition.Values) (string, error)

// builtins returns the computations every resolver knows.
//
//	vat(amount)            amount * rate
//	net_of_vat(amount,vat) amount minus the vat field, or minus the computed
//	                       VAT when the vat field is absent
func builtins(calc vat.Calculator) map[string]ComputeFunc {
	return map[string]ComputeFunc{
		"vat": func(args []string, values condition.Values) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("cascade: vat expects 1 argument, got %d", len(args))
			}
			amount, err := vat.ParseAmount(values[args[0]])
			if err != nil {
				return "", err
			}
			return calc.Format(calc.VAT(amount)), nil
		},
		"net_of_vat": func(args []string, values condition.Values) (string, error) {
			if len(args) == 0 || len(args) > 2 {
				return "", fmt.Errorf("cascade: net_of_vat expects 1 or 2 arguments, got %d", len(args))
			}
			amount, err := vat.ParseAmount(values[args[0]])
			if err != nil {
				return "", err
			}
			if len(args) == 1 {
				return calc.Format(calc.Net(amount)), nil
			}
			raw, present := values[args[1]]
			if !present {
				return calc.Format(amount), nil
			}
			tax, err := vat.ParseAmount(raw)
			if err != nil {
				return "", err
			}
			return calc.Format(amount.Sub(tax)), nil
		},
	}
}
