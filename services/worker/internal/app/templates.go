package app

// SystemSenderUsername is the distinguished identity every templated
// inbox message is sent from. It is created on first use and reused.
const SystemSenderUsername = "virtual_scientist"

// SectionHeadings is the canonical table of contents for workbook PDFs.
// Segmentation matches these literally, so edits here must track the
// published workbook layout.
var SectionHeadings = []string{
	"Welcome to SciTrek!",
	"What You’ll Learn in the Bioinformatics Module",
	"Important Vocabulary",
	"Day 1",
	"Day 2",
	"Day 3",
	"Day 4",
	"Day 5",
}

// InboxTemplate is one templated message the reconciler keeps in every
// student inbox. The subject is the identity; the body may change
// between releases and is pushed out in place.
type InboxTemplate struct {
	Subject string
	Body    string
}

var InboxTemplates = []InboxTemplate{
	{
		Subject: "Welcome to SciTrek!",
		Body:    "Hello! I'm your virtual mentor. Let's get started with Day 1’s module.",
	},
	{
		Subject: "Reminder: Pre‑Module Quiz",
		Body:    "Don't forget to take the pre‑module quiz before starting Day 1.",
	},
	{
		Subject: "Data Files for Day 2",
		Body:    "Please download the dataset for Day 2 from the Resources section.",
	},
	{
		Subject: "Tip for Day 3",
		Body:    "Here's a brand-new tip for Day 3: always back up your FASTA files.",
	},
}
