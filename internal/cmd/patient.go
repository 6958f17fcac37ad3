package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/patient"
)

var (
	patientName string
	patientSSN  string
	patientDOB  string

	recordType    string
	recordContent string
)

var patientCmd = &cobra.Command{
	Use:   "patient",
	Short: "Manage patients and medical records",
}

var patientAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a patient (identity values are stored hashed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "patient.add")
		defer span.End()

		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.AddPatient(ctx, patient.Identity{Name: patientName, SSN: patientSSN, DOB: patientDOB})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var patientSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the sample patients and their records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "patient.seed")
		defer span.End()

		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := patient.Seed(ctx, store)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var patientRecordsCmd = &cobra.Command{
	Use:   "records <patient-id>",
	Short: "List a patient's medical records, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "patient.records")
		defer span.End()

		if !patient.ValidID(args[0]) {
			return fmt.Errorf("malformed patient id %q", args[0])
		}
		_, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.ListRecords(ctx, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tCATEGORY\tTYPE\tCONTENT")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Date.Format("2006-01-02"), r.Category, r.Type, r.Content)
		}
		return w.Flush()
	},
}

var patientAddRecordCmd = &cobra.Command{
	Use:   "add-record <patient-id>",
	Short: "Add a medical record (duplicates are ignored)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "patient.add_record")
		defer span.End()

		cfg, store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		engine, err := buildEngine(cfg, gateKeyword)
		if err != nil {
			return err
		}

		ok, err := store.Exists(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("patient %s: %w", args[0], patient.ErrPatientNotFound)
		}
		scrubbed := ingest.ScrubRecord(ctx, engine.Redactor(), recordContent)
		rec, created, err := store.AddRecord(ctx, args[0], recordType, scrubbed.Text, nil)
		if err != nil {
			return err
		}
		status := "added"
		if !created {
			status = "exists"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", status, strconv.FormatInt(rec.ID, 10))
		return nil
	},
}

func init() {
	patientAddCmd.Flags().StringVar(&patientName, "name", "", "full name")
	patientAddCmd.Flags().StringVar(&patientSSN, "ssn", "", "social security number")
	patientAddCmd.Flags().StringVar(&patientDOB, "dob", "", "date of birth")
	_ = patientAddCmd.MarkFlagRequired("name")
	_ = patientAddCmd.MarkFlagRequired("ssn")
	_ = patientAddCmd.MarkFlagRequired("dob")

	patientAddRecordCmd.Flags().StringVar(&recordType, "type", "", `record type (e.g. "Allergies", "Medications")`)
	patientAddRecordCmd.Flags().StringVar(&recordContent, "content", "", "record text")
	_ = patientAddRecordCmd.MarkFlagRequired("type")
	_ = patientAddRecordCmd.MarkFlagRequired("content")

	patientCmd.AddCommand(patientAddCmd, patientSeedCmd, patientRecordsCmd, patientAddRecordCmd)
	rootCmd.AddCommand(patientCmd)
}
