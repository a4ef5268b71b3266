package accounts

// Well-known account codes the posting routines depend on. A tenant missing a
// code cannot post the document types that use it.
const (
	CodeCashAtBank         = "1010"
	CodeAccountsReceivable = "1100"
	CodeInventory          = "1200"
	CodeTaxReceivable      = "1250"
	CodeVendorAdvances     = "1400"
	CodeAccountsPayable    = "2000"
	CodeTaxPayable         = "2210"
	CodeCustomerDeposits   = "2350"
	CodeSalesRevenue       = "4100"
	CodeOtherRevenue       = "4200"
	CodeCOGS               = "5100"
	CodePurchases          = "5200"
	CodeGeneralExpense     = "6000"
	CodeSalaries           = "6100"
	CodeCommission         = "6200"
)

// DefaultChart is the system chart seeded for new tenants.
var DefaultChart = []CreateInput{
	{Code: "1000", Name: "Current Assets"},
	{Code: CodeCashAtBank, Name: "Cash at Bank"},
	{Code: CodeAccountsReceivable, Name: "Accounts Receivable"},
	{Code: CodeInventory, Name: "Inventory"},
	{Code: CodeTaxReceivable, Name: "Tax Receivable"},
	{Code: CodeVendorAdvances, Name: "Vendor Advances"},
	{Code: CodeAccountsPayable, Name: "Accounts Payable"},
	{Code: CodeTaxPayable, Name: "Tax Payable"},
	{Code: CodeCustomerDeposits, Name: "Customer Deposits"},
	{Code: "3000", Name: "Owner Equity"},
	{Code: CodeSalesRevenue, Name: "Sales Revenue"},
	{Code: CodeOtherRevenue, Name: "Other Revenue"},
	{Code: CodeCOGS, Name: "Cost of Goods Sold"},
	{Code: CodePurchases, Name: "Purchases"},
	{Code: CodeGeneralExpense, Name: "General Expense"},
	{Code: CodeSalaries, Name: "Salaries Expense"},
	{Code: CodeCommission, Name: "Commission Expense"},
}

// defaultParents nests the current asset accounts under 1000.
var defaultParents = map[string]string{
	CodeCashAtBank:         "1000",
	CodeAccountsReceivable: "1000",
	CodeInventory:          "1000",
	CodeTaxReceivable:      "1000",
	CodeVendorAdvances:     "1000",
}
